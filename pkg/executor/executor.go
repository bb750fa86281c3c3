package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultStderrTail is how much of the engine's stderr an EngineError keeps
const DefaultStderrTail = 64 << 10

// EngineError is returned when ffmpeg exits unsuccessfully
type EngineError struct {
	// ExitCode is -1 when the process was killed or never started
	ExitCode int
	// Stderr is the tail of the engine's diagnostic output
	Stderr string
	Err    error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("ffmpeg failed (exit code %d)", e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Executor runs engine commands
type Executor struct {
	logger     *zap.Logger
	timeout    time.Duration
	stderrTail int
}

// NewExecutor creates an executor. A zero timeout leaves runs bounded only by
// the caller's context.
func NewExecutor(logger *zap.Logger, timeout time.Duration) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		logger:     logger,
		timeout:    timeout,
		stderrTail: DefaultStderrTail,
	}
}

// RunOptions carries per-run callbacks
type RunOptions struct {
	// OnProgress receives every status line and the completion percentage
	OnProgress func(p *Progress, percent float64)

	// OnLog receives every other stderr line
	OnLog func(line string)
}

// Run executes cmd and waits for it. The child is killed when ctx is done or
// the executor's timeout elapses.
func (e *Executor) Run(ctx context.Context, cmd *Command, opts *RunOptions) error {
	if cmd == nil || len(cmd.Args) == 0 {
		return fmt.Errorf("empty command")
	}
	if opts == nil {
		opts = &RunOptions{}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	proc := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	proc.WaitDelay = 5 * time.Second

	stderr, err := proc.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	start := time.Now()
	if err := proc.Start(); err != nil {
		return &EngineError{ExitCode: -1, Err: fmt.Errorf("failed to start: %w", err)}
	}

	tail := newTailBuffer(e.stderrTail)
	parser := NewProgressParser(time.Duration(cmd.Duration * float64(time.Second)))

	streamed := make(chan error, 1)
	go func() {
		streamed <- e.streamStderr(stderr, tail, parser, opts)
	}()

	// stderr must be drained before Wait closes the pipe
	streamErr := <-streamed
	waitErr := proc.Wait()

	elapsed := time.Since(start)
	if waitErr != nil {
		engineErr := &EngineError{ExitCode: -1, Stderr: tail.String(), Err: waitErr}

		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			engineErr.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			engineErr.Err = fmt.Errorf("%w after %s", ctxErr, elapsed.Round(time.Millisecond))
		}

		e.logger.Warn("ffmpeg failed",
			zap.Int("exit_code", engineErr.ExitCode),
			zap.Duration("duration", elapsed),
			zap.Error(engineErr.Err),
		)
		return engineErr
	}
	if streamErr != nil {
		e.logger.Warn("ffmpeg stderr stream ended early", zap.Error(streamErr))
	}

	if cmd.Output != "" {
		info, err := os.Stat(cmd.Output)
		if err != nil || info.Size() == 0 {
			return &EngineError{ExitCode: 0, Stderr: tail.String(), Err: fmt.Errorf("no output written to %s", cmd.Output)}
		}
	}

	e.logger.Info("ffmpeg finished", zap.Duration("duration", elapsed))
	return nil
}

// streamStderr feeds every stderr line to the tail buffer and the callbacks.
// ffmpeg ends status lines with '\r', so both '\r' and '\n' split lines.
func (e *Executor) streamStderr(r io.Reader, tail *tailBuffer, parser *ProgressParser, opts *RunOptions) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	scanner.Split(scanLines)

	for scanner.Scan() {
		line := scanner.Text()
		tail.WriteLine(line)

		if p := parser.ParseLine(line); p != nil {
			if opts.OnProgress != nil {
				opts.OnProgress(p, parser.Percent(p))
			}
			continue
		}
		if opts.OnLog != nil && line != "" {
			opts.OnLog(line)
		}
	}

	if err := scanner.Err(); err != nil {
		// keep the pipe drained so the child never blocks on a full buffer
		io.Copy(io.Discard, r)
		return err
	}
	return nil
}

// scanLines is bufio.ScanLines that also splits on a bare '\r'
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		adv := i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			adv++
		}
		return adv, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last max bytes of the lines written to it
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
