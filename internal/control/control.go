package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
)

// maxDatagram is the largest payload accepted per datagram. The read buffer
// is one byte larger so a longer datagram, which the socket truncates, is
// recognized as oversized and ignored rather than parsed.
const maxDatagram = 1024

// ErrClosed is reported when Close is called on an already closed listener.
var ErrClosed = errors.New("control listener closed")

// Command is a recognized control payload.
type Command string

// CommandShutdown triggers the shutdown sequence.
const CommandShutdown Command = "shutdown"

// Parse decodes a datagram payload.
//
// Surrounding whitespace is trimmed, then the text is compared
// case-sensitively against the known commands. Anything else is not a
// command.
func Parse(payload []byte) (Command, bool) {
	if strings.TrimSpace(string(payload)) == string(CommandShutdown) {
		return CommandShutdown, true
	}
	return "", false
}

// Listener receives control datagrams on a UDP socket.
//
// Listener never replies to a sender. The socket is unauthenticated: anyone
// who can reach the bound address can send commands.
type Listener struct {
	conn      net.PacketConn
	onCommand func(Command)
	logger    *slog.Logger

	started atomic.Bool
	closed  atomic.Bool
	stopped chan struct{}
}

// Listen binds the control socket synchronously.
//
// onCommand is invoked from the receive goroutine for every recognized
// command; it must not block. Returns an error if the address cannot be bound.
func Listen(addr string, onCommand func(Command), logger *slog.Logger) (*Listener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind control socket %s: %w", addr, err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	if onCommand == nil {
		onCommand = func(Command) {}
	}

	return &Listener{
		conn:      conn,
		onCommand: onCommand,
		logger:    logger,
		stopped:   make(chan struct{}),
	}, nil
}

// Start runs the receive loop in a background goroutine. Calling Start more
// than once has no effect.
func (l *Listener) Start() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	l.logger.Info("control listener running", "addr", l.conn.LocalAddr().String())
	go l.receive()
}

// receive reads datagrams until the socket is closed.
func (l *Listener) receive() {
	defer close(l.stopped)

	buf := make([]byte, maxDatagram+1)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || l.closed.Load() {
				return
			}
			l.logger.Warn("control read failed", "error", err)
			continue
		}

		if n > maxDatagram {
			l.logger.Debug("control payload ignored", "from", from.String(), "reason", "oversized")
			continue
		}

		cmd, ok := Parse(buf[:n])
		if !ok {
			l.logger.Debug("control payload ignored", "from", from.String(), "bytes", n)
			continue
		}

		l.logger.Info("control command received", "command", string(cmd), "from", from.String())
		l.onCommand(cmd)
	}
}

// Addr returns the bound socket address.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Close issues an asynchronous close and returns immediately.
//
// done is called once the socket is closed and the receive loop has exited.
// A second Close reports [ErrClosed].
func (l *Listener) Close(done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	if !l.closed.CompareAndSwap(false, true) {
		go done(ErrClosed)
		return
	}

	go func() {
		err := l.conn.Close()
		if l.started.Load() {
			<-l.stopped
		}
		done(err)
	}()
}

// Send writes a single datagram carrying payload to addr.
//
// The context bounds dialing and the write. No reply is expected.
func Send(ctx context.Context, addr, payload string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if _, err := conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("failed to send to %s: %w", addr, err)
	}
	return nil
}
