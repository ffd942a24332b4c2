package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytrpc/internal/models"
	"github.com/desertthunder/ytrpc/internal/protocol"
)

// DefaultStopGrace is how long a host gets to exit after its stdin closes before it is killed.
const DefaultStopGrace = 2 * time.Second

// Inbox receives everything a transport reads. Calls may come from any goroutine.
type Inbox interface {
	Message(connID string, msg protocol.Message)
	FramingError(connID string, err error)
	Closed(connID string, err error)
}

// Transport is a live connection to a native host.
type Transport interface {
	Send(msg protocol.Message) error
	// Close starts a graceful shutdown and returns without waiting for it.
	Close() error
	// Done is closed once the transport has fully stopped.
	Done() <-chan struct{}
}

// Dialer starts transports. Closed must be reported to inbox exactly once per successful Dial.
type Dialer interface {
	Dial(ctx context.Context, connID string, inbox Inbox) (Transport, error)
}

// ProcessDialer spawns the native host as a subprocess speaking the framing protocol on stdio.
type ProcessDialer struct {
	Command   string
	Args      []string
	StopGrace time.Duration
	Logger    *log.Logger
}

// Dial starts the host process. The process is bound to ctx.
func (d *ProcessDialer) Dial(ctx context.Context, connID string, inbox Inbox) (Transport, error) {
	if d.Command == "" {
		return nil, fmt.Errorf("%w: no host command configured", models.ErrTransportLost)
	}

	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	grace := d.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}

	cmd := exec.CommandContext(ctx, d.Command, d.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start host: %v", models.ErrTransportLost, err)
	}

	t := &processTransport{
		connID: connID,
		cmd:    cmd,
		stdin:  stdin,
		writer: protocol.NewWriter(stdin),
		inbox:  inbox,
		grace:  grace,
		logger: logger.With("conn", connID, "pid", cmd.Process.Pid),
		done:   make(chan struct{}),
	}
	t.logger.Info("host process spawned", "command", d.Command)

	var readers sync.WaitGroup
	readers.Add(2)
	go t.readMessages(stdout, &readers)
	go t.logStderr(stderr, &readers)
	go t.waitProcess(&readers)

	return t, nil
}

type processTransport struct {
	connID string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *protocol.Writer
	inbox  Inbox
	grace  time.Duration
	logger *log.Logger

	closeOnce sync.Once
	readErr   error
	done      chan struct{}
}

func (t *processTransport) Send(msg protocol.Message) error {
	if err := t.writer.Write(msg); err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransportLost, err)
	}
	return nil
}

// Close closes stdin, then kills the process if it has not exited within the grace period.
func (t *processTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.stdin.Close()
		go func() {
			select {
			case <-t.done:
			case <-time.After(t.grace):
				t.logger.Warn("host did not exit after stdin closed, killing")
				if killErr := t.cmd.Process.Kill(); killErr != nil {
					t.logger.Error("failed to kill host", "error", killErr)
				}
			}
		}()
	})
	return err
}

func (t *processTransport) Done() <-chan struct{} {
	return t.done
}

func (t *processTransport) readMessages(stdout io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	reader := protocol.NewReader(stdout)
	for {
		msg, err := reader.Next()
		if err == nil {
			t.inbox.Message(t.connID, msg)
			continue
		}

		var framingErr *models.FramingError
		if errors.As(err, &framingErr) {
			t.inbox.FramingError(t.connID, err)
			continue
		}
		if !errors.Is(err, io.EOF) {
			t.readErr = err
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				t.logger.Error("unrecoverable frame from host, killing", "error", err)
				_ = t.cmd.Process.Kill()
			}
		}
		return
	}
}

func (t *processTransport) logStderr(stderr io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		t.logger.Debug("host stderr", "line", scanner.Text())
	}
}

// waitProcess reaps the process once its pipes drain and reports the exit.
func (t *processTransport) waitProcess(readers *sync.WaitGroup) {
	readers.Wait()
	err := t.cmd.Wait()

	switch {
	case t.readErr != nil:
		err = fmt.Errorf("%w: %v", models.ErrTransportLost, t.readErr)
	case err != nil:
		err = fmt.Errorf("%w: host exited: %v", models.ErrTransportLost, err)
	default:
		err = fmt.Errorf("%w: host exited", models.ErrTransportLost)
	}

	t.logger.Info("host process exited", "error", err)
	close(t.done)
	t.inbox.Closed(t.connID, err)
}
