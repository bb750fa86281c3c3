package executor

import (
	"fmt"
	"strings"

	"github.com/chicogong/media-compositor/pkg/compiler"
)

// CommandBuilder binds a compiled program to concrete files and produces the
// ffmpeg argument vector.
type CommandBuilder struct {
	ffmpegPath string
}

// NewCommandBuilder creates a builder; an empty path means "ffmpeg" from PATH
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &CommandBuilder{ffmpegPath: ffmpegPath}
}

// Command is a ready-to-run engine invocation
type Command struct {
	Args   []string
	Output string

	// Duration is the canvas length, used for progress percentages
	Duration float64
}

// String returns the arguments joined by spaces, for logs only
func (c *Command) String() string {
	return strings.Join(c.Args, " ")
}

// Build produces
//
//	ffmpeg -i clip... -i image... -filter_complex G -map [vout] [-map [aout]] -y output
//
// Clip paths are bound first so clip i is input i and image j is input
// clips+j, matching the indices the compiler used.
func (cb *CommandBuilder) Build(prog *compiler.Program, clips, images []string, output string) (*Command, error) {
	if prog == nil || prog.Graph == nil {
		return nil, fmt.Errorf("no compiled program")
	}
	if len(clips) != prog.Clips {
		return nil, fmt.Errorf("program expects %d clips, got %d files", prog.Clips, len(clips))
	}
	if len(images) != prog.Images {
		return nil, fmt.Errorf("program expects %d images, got %d files", prog.Images, len(images))
	}
	if output == "" {
		return nil, fmt.Errorf("output path is required")
	}

	args := make([]string, 0, 2*(len(clips)+len(images))+9)
	args = append(args, cb.ffmpegPath)

	for i, path := range clips {
		if path == "" {
			return nil, fmt.Errorf("clip %d has no file", i)
		}
		args = append(args, "-i", path)
	}
	for j, path := range images {
		if path == "" {
			return nil, fmt.Errorf("image %d has no file", j)
		}
		args = append(args, "-i", path)
	}

	args = append(args, "-filter_complex", prog.Graph.String())
	for _, terminal := range prog.Terminals() {
		args = append(args, "-map", terminal.String())
	}
	args = append(args, "-y", output)

	return &Command{
		Args:     args,
		Output:   output,
		Duration: prog.Duration,
	}, nil
}
