// Package geometry maps positions and sizes from a caller's coordinate
// space into the fixed render space.
package geometry

// Space is a pixel frame (width x height) in which coordinates are expressed
type Space struct {
	Width  float64
	Height float64
}

// NewSpace creates a Space from integer dimensions
func NewSpace(width, height int) Space {
	return Space{Width: float64(width), Height: float64(height)}
}

// Point is a normalized position in the render space
type Point struct {
	X int
	Y int
}

// Dimensions is a normalized size in the render space
type Dimensions struct {
	Width  int
	Height int
}

// ScaleValue scales value from an axis of inputDim units to one of outputDim
// units, truncating toward zero. A zero inputDim returns the value unscaled.
func ScaleValue(value, inputDim, outputDim float64) int {
	if inputDim == 0 {
		return int(value)
	}
	return int(value / inputDim * outputDim)
}

// Normalizer scales every geometric attribute of a composition from the
// source space into the target space. Horizontal quantities use the width
// ratio, vertical quantities (including font metrics) use the height ratio.
type Normalizer struct {
	Source Space
	Target Space
}

// NewNormalizer creates a Normalizer for the given source and target spaces
func NewNormalizer(source, target Space) Normalizer {
	return Normalizer{Source: source, Target: target}
}

// X scales a horizontal coordinate
func (n Normalizer) X(v float64) int {
	return ScaleValue(v, n.Source.Width, n.Target.Width)
}

// Y scales a vertical coordinate
func (n Normalizer) Y(v float64) int {
	return ScaleValue(v, n.Source.Height, n.Target.Height)
}

// Position scales a point per axis
func (n Normalizer) Position(x, y float64) Point {
	return Point{X: n.X(x), Y: n.Y(y)}
}

// Size scales a width/height pair per axis
func (n Normalizer) Size(width, height float64) Dimensions {
	return Dimensions{Width: n.X(width), Height: n.Y(height)}
}

// FontSize scales a font size along the vertical axis
func (n Normalizer) FontSize(v float64) int {
	return n.Y(v)
}

// Padding scales a text box padding along the vertical axis
func (n Normalizer) Padding(v float64) int {
	return n.Y(v)
}

// Radius scales a corner radius along the horizontal axis
func (n Normalizer) Radius(v float64) int {
	return n.X(v)
}
