package schemas

// CompositionRequest is the composition descriptor as submitted by the caller.
// Optional and required attributes are pointers so absence can be told apart
// from zero; validation turns this into a composition.Composition.
type CompositionRequest struct {
	Videos []ClipSpec  `json:"videos"`
	Images []ImageSpec `json:"images"`
	Texts  []TextSpec  `json:"texts"`

	// Source coordinate space. Zero or absent means the output resolution.
	CanvasWidth  float64 `json:"canvasWidth,omitempty"`
	CanvasHeight float64 `json:"canvasHeight,omitempty"`

	// Output is an optional file:// or s3:// URI the rendered video is
	// copied to in addition to being returned.
	Output string `json:"output,omitempty"`
}

// ClipSpec describes a video clip layer
type ClipSpec struct {
	// Source is a URI to fetch the clip from when it was not uploaded
	Source string `json:"source,omitempty"`

	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`

	Speed  *float64 `json:"speed,omitempty"`
	Volume *float64 `json:"volume,omitempty"`

	StartTime *Seconds `json:"startTime,omitempty"`
	EndTime   *Seconds `json:"endTime,omitempty"`
	Duration  *Seconds `json:"duration,omitempty"`
}

// ImageSpec describes a still image layer
type ImageSpec struct {
	Source string `json:"source,omitempty"`

	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`

	BorderRadius *float64 `json:"borderRadius,omitempty"`
	Opacity      *float64 `json:"opacity,omitempty"`

	StartTime *Seconds `json:"startTime"`
	EndTime   *Seconds `json:"endTime"`
}

// TextSpec describes a text overlay. X/Y locate the centre of the text box.
type TextSpec struct {
	X           *float64 `json:"x"`
	Y           *float64 `json:"y"`
	Description *string  `json:"description"`
	FontSize    *float64 `json:"fontSize"`
	Color       *string  `json:"color"`
	Opacity     *float64 `json:"opacity,omitempty"`

	BackgroundColor string   `json:"backgroundColor,omitempty"`
	Padding         *float64 `json:"padding,omitempty"`

	FontWeight  string `json:"fontWeight,omitempty"`
	IsUnderline bool   `json:"isUnderline,omitempty"`

	StartTime *Seconds `json:"startTime"`
	EndTime   *Seconds `json:"endTime"`
}
