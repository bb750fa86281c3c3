// Package composition holds the validated, fully-populated representation of
// a composition that the graph compiler consumes.
package composition

import "github.com/chicogong/media-compositor/pkg/geometry"

// Window is a time interval, in seconds, during which a layer is active
type Window struct {
	Start float64
	End   float64
}

// Composition is a validated composition
type Composition struct {
	// Canvas is the caller's coordinate space
	Canvas geometry.Space

	Clips  []Clip
	Images []Image
	Texts  []Text

	// Output is an optional destination URI for the rendered file
	Output string
}

// Clip is a video layer. MediaIndex is its position in the bound inputs.
type Clip struct {
	MediaIndex int
	Source     string

	X, Y float64

	// Size is nil when the clip keeps its native size
	Size *Size

	Speed  float64
	Volume float64

	// Window is nil only for the first clip, which is always visible
	Window *Window

	// Duration is only meaningful for the first clip, it sizes the canvas
	Duration float64
}

// Size is an explicit width/height in the caller's space
type Size struct {
	Width  float64
	Height float64
}

// Image is a still image layer
type Image struct {
	MediaIndex int
	Source     string

	X, Y          float64
	Width, Height float64

	BorderRadius float64
	Opacity      float64

	Window Window
}

// Text is a text overlay centred on X/Y
type Text struct {
	X, Y        float64
	Description string
	FontSize    float64
	Color       string
	Opacity     float64

	// Background is empty when no box is drawn
	Background string
	Padding    float64

	Bold      bool
	Underline bool

	Window Window
}

// MediaCount returns the number of media inputs the composition binds
func (c *Composition) MediaCount() int {
	return len(c.Clips) + len(c.Images)
}
