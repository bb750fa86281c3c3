// Package prober reads container and stream metadata with ffprobe
package prober

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// MediaInfo describes a probed media file
type MediaInfo struct {
	Format       string        `json:"format"`
	Duration     time.Duration `json:"duration"`
	Size         int64         `json:"size"`
	BitRate      int64         `json:"bit_rate,omitempty"`
	VideoStreams []VideoStream `json:"video_streams,omitempty"`
	AudioStreams []AudioStream `json:"audio_streams,omitempty"`
}

// VideoStream is one video stream of a probed file
type VideoStream struct {
	Index       int           `json:"index"`
	Codec       string        `json:"codec"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	FrameRate   float64       `json:"frame_rate"`
	PixelFormat string        `json:"pixel_format,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// AudioStream is one audio stream of a probed file
type AudioStream struct {
	Index      int           `json:"index"`
	Codec      string        `json:"codec"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// HasAudio reports whether the file carries at least one audio stream
func (m *MediaInfo) HasAudio() bool {
	return len(m.AudioStreams) > 0
}

// Prober runs ffprobe
type Prober struct {
	ffprobePath string
}

// ProberOption is a functional option for Prober
type ProberOption func(*Prober)

// WithFFprobePath sets the ffprobe binary
func WithFFprobePath(path string) ProberOption {
	return func(p *Prober) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// NewProber creates a Prober using ffprobe from PATH unless overridden
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{ffprobePath: "ffprobe"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe returns the metadata of the file at path
func (p *Prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe %s: %s", path, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe execution error: %w", err)
	}

	return parseFFprobeOutput(out)
}

// Duration returns the container duration of the file at path. A file whose
// duration ffprobe cannot determine is an error.
func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}

	d := info.Duration
	if d <= 0 {
		for _, vs := range info.VideoStreams {
			d = max(d, vs.Duration)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("ffprobe %s: duration unknown", path)
	}
	return d, nil
}

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		Index       int    `json:"index"`
		CodecType   string `json:"codec_type"`
		CodecName   string `json:"codec_name"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		RFrameRate  string `json:"r_frame_rate"`
		PixelFormat string `json:"pix_fmt"`
		SampleRate  string `json:"sample_rate"`
		Channels    int    `json:"channels"`
		Duration    string `json:"duration"`
	} `json:"streams"`
}

func parseFFprobeOutput(data []byte) (*MediaInfo, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &MediaInfo{
		Format:   raw.Format.FormatName,
		Duration: parseSeconds(raw.Format.Duration),
		Size:     parseInt64(raw.Format.Size),
		BitRate:  parseInt64(raw.Format.BitRate),
	}

	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			info.VideoStreams = append(info.VideoStreams, VideoStream{
				Index:       s.Index,
				Codec:       s.CodecName,
				Width:       s.Width,
				Height:      s.Height,
				FrameRate:   parseFrameRate(s.RFrameRate),
				PixelFormat: s.PixelFormat,
				Duration:    parseSeconds(s.Duration),
			})
		case "audio":
			info.AudioStreams = append(info.AudioStreams, AudioStream{
				Index:      s.Index,
				Codec:      s.CodecName,
				SampleRate: int(parseInt64(s.SampleRate)),
				Channels:   s.Channels,
				Duration:   parseSeconds(s.Duration),
			})
		}
	}

	return info, nil
}

// parseSeconds parses ffprobe's decimal seconds; "N/A" and garbage are zero
func parseSeconds(s string) time.Duration {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseFrameRate parses "30/1" or "30000/1001"
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		rate, _ := strconv.ParseFloat(s, 64)
		return rate
	}

	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
