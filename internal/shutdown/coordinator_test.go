package shutdown

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testGrace    = 50 * time.Millisecond
	testFailsafe = 200 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// exitRecorder replaces os.Exit and records every call.
type exitRecorder struct {
	mu    sync.Mutex
	codes []int
	ch    chan int
}

func newExitRecorder() *exitRecorder {
	return &exitRecorder{ch: make(chan int, 4)}
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	e.codes = append(e.codes, code)
	e.mu.Unlock()
	e.ch <- code
}

func (e *exitRecorder) calls() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

// waitExit returns the first exit code or fails after timeout.
func (e *exitRecorder) waitExit(t *testing.T, timeout time.Duration) int {
	t.Helper()
	select {
	case code := <-e.ch:
		return code
	case <-time.After(timeout):
		t.Fatal("exit was not called")
		return -1
	}
}

func newTestCoordinator(t *testing.T, rec *exitRecorder, sequential bool) *Coordinator {
	t.Helper()
	coord, err := New(Config{
		GracePeriod:     testGrace,
		FailsafeTimeout: testFailsafe,
		Sequential:      sequential,
		Exit:            rec.exit,
		Logger:          testLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return coord
}

// immediate completes its close request synchronously with err.
func immediate(err error) CloserFunc {
	return func(done func(error)) { done(err) }
}

func TestNew_Defaults(t *testing.T) {
	coord, err := New(Config{Exit: func(int) {}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if coord.config.GracePeriod != DefaultGracePeriod {
		t.Errorf("GracePeriod = %v, want %v", coord.config.GracePeriod, DefaultGracePeriod)
	}
	if coord.config.FailsafeTimeout != DefaultFailsafeTimeout {
		t.Errorf("FailsafeTimeout = %v, want %v", coord.config.FailsafeTimeout, DefaultFailsafeTimeout)
	}
	if coord.State() != StateRunning {
		t.Errorf("State() = %v, want %v", coord.State(), StateRunning)
	}
	if coord.ExitCode() != -1 {
		t.Errorf("ExitCode() = %d, want -1", coord.ExitCode())
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative grace", Config{GracePeriod: -time.Second, FailsafeTimeout: time.Second}},
		{"negative failsafe", Config{GracePeriod: time.Second, FailsafeTimeout: -time.Second}},
		{"grace equals failsafe", Config{GracePeriod: time.Second, FailsafeTimeout: time.Second}},
		{"grace exceeds failsafe", Config{GracePeriod: 5 * time.Second, FailsafeTimeout: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateRunning, "running"},
		{StateShuttingDown, "shutting_down"},
		{StateTerminated, "terminated"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int32(tt.state), got, tt.want)
		}
	}
}

func TestTrigger_IssuesClosesInRegistrationOrder(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, false)

	var mu sync.Mutex
	var order []string
	record := func(name string) CloserFunc {
		return func(done func(error)) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			go done(nil)
		}
	}

	coord.Register("control", record("control"))
	coord.Register("realtime", record("realtime"))
	coord.Register("http", record("http"))

	if !coord.Trigger("test") {
		t.Fatal("Trigger() = false, want true")
	}
	if code := rec.waitExit(t, time.Second); code != ExitClean {
		t.Errorf("exit code = %d, want %d", code, ExitClean)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"control", "realtime", "http"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("close order = %v, want %v", order, want)
	}
}

func TestTrigger_Idempotent(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, false)

	var closes atomic.Int32
	coord.RegisterFunc("http", func(done func(error)) {
		closes.Add(1)
		done(nil)
	})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if coord.Trigger("test") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("successful triggers = %d, want 1", got)
	}
	if code := rec.waitExit(t, time.Second); code != ExitClean {
		t.Errorf("exit code = %d, want %d", code, ExitClean)
	}

	// a late trigger after exit must not re-issue anything either
	if coord.Trigger("late") {
		t.Error("Trigger() after exit = true, want false")
	}

	time.Sleep(testFailsafe)
	if got := closes.Load(); got != 1 {
		t.Errorf("close requests = %d, want 1", got)
	}
	if got := rec.calls(); !reflect.DeepEqual(got, []int{ExitClean}) {
		t.Errorf("exit calls = %v, want [%d]", got, ExitClean)
	}
}

func TestTrigger_StateTransitions(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, false)
	coord.Register("http", immediate(nil))

	if coord.State() != StateRunning {
		t.Errorf("State() before trigger = %v, want %v", coord.State(), StateRunning)
	}
	coord.Trigger("test")
	if coord.State() != StateShuttingDown {
		t.Errorf("State() after trigger = %v, want %v", coord.State(), StateShuttingDown)
	}

	rec.waitExit(t, time.Second)
	<-coord.Done()
	if coord.State() != StateTerminated {
		t.Errorf("State() after exit = %v, want %v", coord.State(), StateTerminated)
	}
	if coord.ExitCode() != ExitClean {
		t.Errorf("ExitCode() = %d, want %d", coord.ExitCode(), ExitClean)
	}
}

func TestGrace_ExitIsNeverFasterThanGracePeriod(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, false)
	coord.Register("control", immediate(nil))
	coord.Register("realtime", immediate(nil))
	coord.Register("http", immediate(nil))

	start := time.Now()
	coord.Trigger("test")
	code := rec.waitExit(t, time.Second)
	elapsed := time.Since(start)

	if code != ExitClean {
		t.Errorf("exit code = %d, want %d", code, ExitClean)
	}
	if elapsed < testGrace {
		t.Errorf("exited after %s, want at least %s", elapsed, testGrace)
	}
	if elapsed >= testFailsafe {
		t.Errorf("exited after %s, want before %s", elapsed, testFailsafe)
	}
	if got := len(coord.Results()); got != 3 {
		t.Errorf("len(Results()) = %d, want 3", got)
	}
}

func TestGrace_StopsFailsafeTimer(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, false)
	coord.Register("http", immediate(nil))

	coord.Trigger("test")
	rec.waitExit(t, time.Second)

	// wait well past the failsafe; it must not fire a second exit
	time.Sleep(2 * testFailsafe)
	if got := rec.calls(); !reflect.DeepEqual(got, []int{ExitClean}) {
		t.Errorf("exit calls = %v, want [%d]", got, ExitClean)
	}
}

func TestFailsafe_WhenCloseRequestBlocks(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, false)

	release := make(chan struct{})
	defer close(release)

	coord.Register("control", immediate(nil))
	coord.RegisterFunc("http", func(done func(error)) {
		<-release // the request itself never returns, so grace is never armed
		done(nil)
	})

	start := time.Now()
	coord.Trigger("test")
	code := rec.waitExit(t, time.Second)
	elapsed := time.Since(start)

	if code != ExitForced {
		t.Errorf("exit code = %d, want %d", code, ExitForced)
	}
	if elapsed < testFailsafe {
		t.Errorf("exited after %s, want at least %s", elapsed, testFailsafe)
	}
	if coord.ExitCode() != ExitForced {
		t.Errorf("ExitCode() = %d, want %d", coord.ExitCode(), ExitForced)
	}
}

func TestFanOut_HungCompletionStillExitsClean(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, false)

	// request returns but completion never arrives
	coord.RegisterFunc("realtime", func(done func(error)) {})
	coord.Register("http", immediate(nil))

	coord.Trigger("test")
	if code := rec.waitExit(t, time.Second); code != ExitClean {
		t.Errorf("exit code = %d, want %d", code, ExitClean)
	}

	results := coord.Results()
	if len(results) != 1 {
		t.Fatalf("len(Results()) = %d, want 1", len(results))
	}
	if results[0].Name != "http" {
		t.Errorf("Results()[0].Name = %q, want %q", results[0].Name, "http")
	}
}

func TestSequential_AwaitsEachCompletion(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, true)

	var mu sync.Mutex
	var events []string
	log := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	coord.RegisterFunc("control", func(done func(error)) {
		log("control:request")
		go func() {
			time.Sleep(10 * time.Millisecond)
			log("control:done")
			done(nil)
		}()
	})
	coord.RegisterFunc("http", func(done func(error)) {
		log("http:request")
		done(nil)
	})

	coord.Trigger("test")
	if code := rec.waitExit(t, time.Second); code != ExitClean {
		t.Errorf("exit code = %d, want %d", code, ExitClean)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"control:request", "control:done", "http:request"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestSequential_HungCompletionForcesFailsafe(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, true)

	var httpIssued atomic.Bool
	coord.RegisterFunc("realtime", func(done func(error)) {})
	coord.RegisterFunc("http", func(done func(error)) {
		httpIssued.Store(true)
		done(nil)
	})

	coord.Trigger("test")
	if code := rec.waitExit(t, time.Second); code != ExitForced {
		t.Errorf("exit code = %d, want %d", code, ExitForced)
	}
	if httpIssued.Load() {
		t.Error("http close was issued before realtime completed")
	}
}

func TestCloseErrors_AreLoggedNotFatal(t *testing.T) {
	rec := newExitRecorder()

	var progress []Result
	var mu sync.Mutex
	coord, err := New(Config{
		GracePeriod:     testGrace,
		FailsafeTimeout: testFailsafe,
		Exit:            rec.exit,
		Logger:          testLogger(),
		OnProgress: func(r Result) {
			mu.Lock()
			progress = append(progress, r)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	closeErr := errors.New("socket already closed")
	coord.Register("control", immediate(closeErr))
	coord.Register("http", immediate(nil))

	coord.Trigger("test")
	if code := rec.waitExit(t, time.Second); code != ExitClean {
		t.Errorf("exit code = %d, want %d", code, ExitClean)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(progress) != 2 {
		t.Fatalf("progress callbacks = %d, want 2", len(progress))
	}
	if !errors.Is(progress[0].Err, closeErr) {
		t.Errorf("progress[0].Err = %v, want %v", progress[0].Err, closeErr)
	}
	if progress[1].Err != nil {
		t.Errorf("progress[1].Err = %v, want nil", progress[1].Err)
	}
}

func TestCompletion_DuplicateCallbacksIgnored(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, false)

	coord.RegisterFunc("http", func(done func(error)) {
		done(nil)
		done(errors.New("second call"))
	})

	coord.Trigger("test")
	rec.waitExit(t, time.Second)

	results := coord.Results()
	if len(results) != 1 {
		t.Fatalf("len(Results()) = %d, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("Results()[0].Err = %v, want nil", results[0].Err)
	}
}

func TestRegister_AfterTriggerIgnored(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, false)

	coord.Trigger("test")

	var called atomic.Bool
	accepted := coord.RegisterFunc("late", func(done func(error)) {
		called.Store(true)
		done(nil)
	})
	if accepted {
		t.Error("RegisterFunc() after trigger = true, want false")
	}

	rec.waitExit(t, time.Second)
	if called.Load() {
		t.Error("closer registered after trigger was called")
	}
}

func TestRegister_BeforeTriggerAccepted(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, false)

	if !coord.Register("http", immediate(nil)) {
		t.Error("Register() before trigger = false, want true")
	}
}

func TestTrigger_NoClosers(t *testing.T) {
	rec := newExitRecorder()
	coord := newTestCoordinator(t, rec, false)

	coord.Trigger("test")
	if code := rec.waitExit(t, time.Second); code != ExitClean {
		t.Errorf("exit code = %d, want %d", code, ExitClean)
	}
}

func TestDefaultConfig_InjectedExitClosesDone(t *testing.T) {
	rec := newExitRecorder()
	cfg := DefaultConfig()
	cfg.Exit = rec.exit
	cfg.Logger = testLogger()

	coord, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	coord.Register("http", immediate(nil))
	coord.Trigger("control")

	select {
	case <-coord.Done():
	case <-time.After(DefaultFailsafeTimeout + time.Second):
		t.Fatal("Done() was not closed after the injected exit returned")
	}
	if got := rec.calls(); !reflect.DeepEqual(got, []int{ExitClean}) {
		t.Errorf("exit calls = %v, want [%d]", got, ExitClean)
	}
}
