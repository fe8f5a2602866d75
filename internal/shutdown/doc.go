// Package shutdown drives the ordered, time-bounded teardown of the server's
// listeners.
//
// A [Coordinator] holds the registered closers in issue order and two one-shot
// timers:
//
//	Trigger ──► arm failsafe (exit 1)
//	        ──► close control ──► close realtime ──► close http
//	        ──► arm grace (exit 0)
//
// Close requests are issued in order but their completions are not joined:
// each completion is only logged. Exit is always timer-driven. The grace
// timer gives a clean exit once every request is out; the failsafe covers a
// close request that never returns. Whichever timer fires first exits the
// process and stops the other.
//
// With [Config.Sequential] set, each completion is awaited before the next
// request is issued, so a hung close falls through to the failsafe.
//
// Usage:
//
//	cfg := shutdown.DefaultConfig()
//	cfg.Exit = func(code int) { log.Printf("exit %d", code) }
//
//	coord, err := shutdown.New(cfg)
//	coord.Register("control", controlListener)
//	coord.Register("realtime", hub)
//	coord.Register("http", httpListener)
//
//	coord.Trigger("control") // first call wins, later calls are no-ops
//	<-coord.Done()            // closed once Exit returns
//
// With the default Exit, os.Exit ends the process inside the timer and
// Done is never closed.
package shutdown
