package executor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chicogong/media-compositor/pkg/schemas"
)

// Progress is one ffmpeg status line
type Progress struct {
	Frame   int
	FPS     float64
	Time    time.Duration // position in the output timeline
	Size    int64         // bytes written so far
	Bitrate float64       // kbit/s
	Speed   float64       // 1.0 = realtime
}

// Schema converts the progress into its API representation
func (p *Progress) Schema() *schemas.FFmpegProgress {
	return &schemas.FFmpegProgress{
		Frame:       p.Frame,
		FPS:         p.FPS,
		CurrentTime: formatClock(p.Time),
		Speed:       p.Speed,
		Bitrate:     p.Bitrate,
		TotalSize:   p.Size,
	}
}

var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	timeRe    = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	sizeRe    = regexp.MustCompile(`size=\s*(\d+)\s*(kB|KiB|MB|MiB|B)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+)kbits/s`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// ProgressParser turns ffmpeg stderr lines into Progress values. A parser is
// bound to one render because it carries that render's total duration.
type ProgressParser struct {
	total time.Duration
}

// NewProgressParser creates a parser for a render of the given length.
// A zero total disables percentage computation.
func NewProgressParser(total time.Duration) *ProgressParser {
	return &ProgressParser{total: total}
}

// ParseLine returns nil for lines that are not status lines
func (pp *ProgressParser) ParseLine(line string) *Progress {
	if !strings.Contains(line, "frame=") || !strings.Contains(line, "time=") {
		return nil
	}

	p := &Progress{}

	if m := frameRe.FindStringSubmatch(line); m != nil {
		p.Frame, _ = strconv.Atoi(m[1])
	}
	if m := fpsRe.FindStringSubmatch(line); m != nil {
		p.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := timeRe.FindStringSubmatch(line); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		sec, _ := strconv.ParseFloat(m[3], 64)
		p.Time = time.Duration(h)*time.Hour +
			time.Duration(min)*time.Minute +
			time.Duration(sec*float64(time.Second))
	}
	if m := sizeRe.FindStringSubmatch(line); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		switch m[2] {
		case "kB", "KiB":
			n *= 1024
		case "MB", "MiB":
			n *= 1024 * 1024
		}
		p.Size = n
	}
	if m := bitrateRe.FindStringSubmatch(line); m != nil {
		p.Bitrate, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		p.Speed, _ = strconv.ParseFloat(m[1], 64)
	}

	return p
}

// Percent returns how far into the render p is, clamped to 0..100
func (pp *ProgressParser) Percent(p *Progress) float64 {
	if pp.total <= 0 || p == nil {
		return 0
	}
	pct := float64(p.Time) / float64(pp.total) * 100
	return min(max(pct, 0), 100)
}

func formatClock(d time.Duration) string {
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	sec := (d % time.Minute).Seconds()
	return fmt.Sprintf("%02d:%02d:%05.2f", h, m, sec)
}
