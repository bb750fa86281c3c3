// Package compiler turns a validated composition into an ffmpeg filter graph.
//
// Stages run in a fixed order (canvas, clips, audio mix, images, texts,
// final output) and hand a frontier value from one to the next. The frontier
// carries the label of the most recently composited video and the audio
// labels collected so far; each stage consumes the frontier it is given and
// returns the one it produced.
package compiler

import (
	"fmt"

	"github.com/chicogong/media-compositor/pkg/composition"
	"github.com/chicogong/media-compositor/pkg/filtergraph"
	"github.com/chicogong/media-compositor/pkg/geometry"
)

const (
	// LabelVideoOut is the final composited video terminal
	LabelVideoOut filtergraph.Label = "vout"
	// LabelAudioOut is the mixed audio terminal, present only with clips
	LabelAudioOut filtergraph.Label = "aout"

	labelCanvas filtergraph.Label = "canvas"
)

// Options configures a Compiler
type Options struct {
	// Output is the fixed render resolution
	Width  int
	Height int

	// DefaultDuration sizes the canvas when there are no clips, in seconds
	DefaultDuration float64

	// FontFamily is the typeface for text overlays; bold appends "-Bold"
	FontFamily string

	// CanvasColor fills the canvas below all layers
	CanvasColor string
}

// DefaultOptions returns the standard 1080p options
func DefaultOptions() Options {
	return Options{
		Width:           1920,
		Height:          1080,
		DefaultDuration: 10,
		FontFamily:      "Arial",
		CanvasColor:     "black",
	}
}

// Compiler builds filter graphs for compositions
type Compiler struct {
	opts Options
}

// New creates a new Compiler, filling zero options with defaults
func New(opts Options) *Compiler {
	def := DefaultOptions()
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = def.Width, def.Height
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = def.DefaultDuration
	}
	if opts.FontFamily == "" {
		opts.FontFamily = def.FontFamily
	}
	if opts.CanvasColor == "" {
		opts.CanvasColor = def.CanvasColor
	}
	return &Compiler{opts: opts}
}

// Options returns the effective options
func (c *Compiler) Options() Options {
	return c.opts
}

// Program is a compiled composition: the graph and its output terminals
type Program struct {
	Graph *filtergraph.Graph

	// Video is always LabelVideoOut
	Video filtergraph.Label

	// Audio is LabelAudioOut when the composition has clips, empty otherwise
	Audio filtergraph.Label

	Clips  int
	Images int

	// Duration is the canvas duration in seconds
	Duration float64
}

// HasAudio reports whether the program produces an audio terminal
func (p *Program) HasAudio() bool {
	return p.Audio != ""
}

// Terminals returns the labels to map into the output container
func (p *Program) Terminals() []filtergraph.Label {
	if p.HasAudio() {
		return []filtergraph.Label{p.Video, p.Audio}
	}
	return []filtergraph.Label{p.Video}
}

// frontier is threaded through the compile stages
type frontier struct {
	video filtergraph.Label
	audio []filtergraph.Label
	mixed filtergraph.Label
}

// Compile builds the filter graph for comp
func (c *Compiler) Compile(comp *composition.Composition) (*Program, error) {
	if comp == nil {
		return nil, fmt.Errorf("composition is nil")
	}

	norm := geometry.NewNormalizer(comp.Canvas, geometry.NewSpace(c.opts.Width, c.opts.Height))
	g := filtergraph.New(comp.MediaCount())

	duration := c.opts.DefaultDuration
	if len(comp.Clips) > 0 {
		duration = comp.Clips[0].Duration
		if duration <= 0 {
			return nil, fmt.Errorf("clip 0: duration is required to size the canvas")
		}
	}

	f := c.placeCanvas(g, duration)

	f, err := c.placeClips(g, norm, comp.Clips, f)
	if err != nil {
		return nil, err
	}

	f = c.mixAudio(g, f)

	f, err = c.placeImages(g, norm, comp.Images, f)
	if err != nil {
		return nil, err
	}

	f = c.placeTexts(g, norm, comp.Texts, f)
	f = c.finish(g, f)

	prog := &Program{
		Graph:    g,
		Video:    f.video,
		Audio:    f.mixed,
		Clips:    len(comp.Clips),
		Images:   len(comp.Images),
		Duration: duration,
	}

	if err := g.Validate(prog.Terminals()...); err != nil {
		return nil, fmt.Errorf("compiled graph is inconsistent: %w", err)
	}

	return prog, nil
}
