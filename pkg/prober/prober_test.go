package prober

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutput = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720,
     "r_frame_rate": "30000/1001", "pix_fmt": "yuv420p", "duration": "12.012000"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "sample_rate": "48000",
     "channels": 2, "duration": "12.000000"}
  ],
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "12.012000",
             "size": "1048576", "bit_rate": "698000"}
}`

func TestParseFFprobeOutput(t *testing.T) {
	info, err := parseFFprobeOutput([]byte(sampleOutput))
	require.NoError(t, err)

	assert.Equal(t, "mov,mp4,m4a,3gp,3g2,mj2", info.Format)
	assert.Equal(t, 12012*time.Millisecond, info.Duration)
	assert.Equal(t, int64(1048576), info.Size)
	assert.True(t, info.HasAudio())

	require.Len(t, info.VideoStreams, 1)
	vs := info.VideoStreams[0]
	assert.Equal(t, 1280, vs.Width)
	assert.Equal(t, 720, vs.Height)
	assert.InDelta(t, 29.97, vs.FrameRate, 0.01)

	require.Len(t, info.AudioStreams, 1)
	assert.Equal(t, 48000, info.AudioStreams[0].SampleRate)
}

func TestParseFFprobeOutput_Invalid(t *testing.T) {
	_, err := parseFFprobeOutput([]byte("not json"))
	assert.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, parseSeconds("1.5"))
	assert.Zero(t, parseSeconds("N/A"))
	assert.Zero(t, parseSeconds(""))
	assert.Equal(t, 25.0, parseFrameRate("25/1"))
	assert.Equal(t, 24.0, parseFrameRate("24"))
	assert.Zero(t, parseFrameRate("1/0"))
	assert.Zero(t, parseInt64("abc"))
}

// fakeFFprobe writes a script that prints output and exits with code
func fakeFFprobe(t *testing.T, output string, code int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine stand-in")
	}

	dir := t.TempDir()
	data := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(data, []byte(output), 0o644))

	script := filepath.Join(dir, "ffprobe")
	body := "#!/bin/sh\ncat " + data + "\n"
	if code != 0 {
		body = "#!/bin/sh\necho 'Invalid data found when processing input' >&2\nexit " + strconv.Itoa(code) + "\n"
	}
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script
}

func TestProber_Duration(t *testing.T) {
	p := NewProber(WithFFprobePath(fakeFFprobe(t, sampleOutput, 0)))

	d, err := p.Duration(context.Background(), "/staging/video_0.mp4")
	require.NoError(t, err)
	assert.Equal(t, 12012*time.Millisecond, d)
}

func TestProber_DurationFallsBackToStream(t *testing.T) {
	out := `{"streams":[{"index":0,"codec_type":"video","duration":"4.5"}],"format":{"duration":"N/A"}}`
	p := NewProber(WithFFprobePath(fakeFFprobe(t, out, 0)))

	d, err := p.Duration(context.Background(), "clip.webm")
	require.NoError(t, err)
	assert.Equal(t, 4500*time.Millisecond, d)
}

func TestProber_DurationUnknown(t *testing.T) {
	p := NewProber(WithFFprobePath(fakeFFprobe(t, `{"streams":[],"format":{}}`, 0)))

	_, err := p.Duration(context.Background(), "still.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duration unknown")
}

func TestProber_Failure(t *testing.T) {
	p := NewProber(WithFFprobePath(fakeFFprobe(t, "", 1)))

	_, err := p.Probe(context.Background(), "broken.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestProber_MissingBinary(t *testing.T) {
	p := NewProber(WithFFprobePath(filepath.Join(t.TempDir(), "nope")))

	_, err := p.Probe(context.Background(), "clip.mp4")
	assert.Error(t, err)
}

func TestNewProber_DefaultPath(t *testing.T) {
	assert.Equal(t, "ffprobe", NewProber().ffprobePath)
	assert.Equal(t, "ffprobe", NewProber(WithFFprobePath("")).ffprobePath)
}
