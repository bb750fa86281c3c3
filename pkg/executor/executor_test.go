package executor

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEngine writes a shell script standing in for ffmpeg
func fakeEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine stand-in")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func command(engine, output string, duration float64) *Command {
	return &Command{
		Args:     []string{engine, "-filter_complex", "color[vout];", "-map", "[vout]", "-y", output},
		Output:   output,
		Duration: duration,
	}
}

func TestExecutor_RunSuccess(t *testing.T) {
	engine := fakeEngine(t, `for last; do :; done
echo "Input #0, lavfi" >&2
printf 'frame=   25 fps=25 q=-1.0 size=      64kB time=00:00:01.00 bitrate= 524.3kbits/s speed=1x\r' >&2
printf 'frame=   50 fps=25 q=-1.0 Lsize=     128kB time=00:00:02.00 bitrate= 524.3kbits/s speed=1x\n' >&2
echo rendered > "$last"
`)
	output := filepath.Join(t.TempDir(), "output.mp4")

	var percents []float64
	var logs []string
	err := NewExecutor(zap.NewNop(), time.Minute).Run(context.Background(), command(engine, output, 2), &RunOptions{
		OnProgress: func(p *Progress, pct float64) { percents = append(percents, pct) },
		OnLog:      func(line string) { logs = append(logs, line) },
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{50, 100}, percents)
	assert.Equal(t, []string{"Input #0, lavfi"}, logs)
	assert.FileExists(t, output)
}

func TestExecutor_RunFailureCarriesStderr(t *testing.T) {
	engine := fakeEngine(t, `echo "[AVFilterGraph @ 0x1] No such filter: 'bogus'" >&2
echo "Error initializing complex filters." >&2
exit 8
`)

	err := NewExecutor(nil, time.Minute).Run(context.Background(), command(engine, "", 0), nil)
	require.Error(t, err)

	var engineErr *EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, 8, engineErr.ExitCode)
	assert.Contains(t, engineErr.Stderr, "No such filter: 'bogus'")
	assert.Contains(t, err.Error(), "Error initializing complex filters.")
}

func TestExecutor_RunTimeout(t *testing.T) {
	engine := fakeEngine(t, "exec sleep 10\n")

	start := time.Now()
	err := NewExecutor(nil, 200*time.Millisecond).Run(context.Background(), command(engine, "", 0), nil)
	require.Error(t, err)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 8*time.Second)
}

func TestExecutor_RunCancelled(t *testing.T) {
	engine := fakeEngine(t, "exec sleep 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	err := NewExecutor(nil, 0).Run(ctx, command(engine, "", 0), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutor_RunMissingOutput(t *testing.T) {
	engine := fakeEngine(t, "exit 0\n")
	output := filepath.Join(t.TempDir(), "output.mp4")

	err := NewExecutor(nil, time.Minute).Run(context.Background(), command(engine, output, 0), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no output written")
}

func TestExecutor_RunMissingBinary(t *testing.T) {
	err := NewExecutor(nil, 0).Run(context.Background(), command(filepath.Join(t.TempDir(), "nope"), "", 0), nil)

	var engineErr *EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, -1, engineErr.ExitCode)
}

func TestExecutor_RunEmptyCommand(t *testing.T) {
	assert.Error(t, NewExecutor(nil, 0).Run(context.Background(), &Command{}, nil))
}

func TestTailBuffer(t *testing.T) {
	tail := newTailBuffer(10)
	tail.WriteLine("12345")
	tail.WriteLine("abcdefgh")

	assert.Equal(t, "5\nabcdefgh\n", tail.String())
	assert.Len(t, tail.String(), 10)
}

func TestScanLines(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("a\rb\r\nc\nd"))
	scanner.Split(scanLines)

	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}
