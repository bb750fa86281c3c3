package validator

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/chicogong/media-compositor/pkg/composition"
	"github.com/chicogong/media-compositor/pkg/geometry"
	"github.com/chicogong/media-compositor/pkg/schemas"
	"github.com/chicogong/media-compositor/pkg/storage"
)

// colorPattern accepts colour names and hex forms; anything that could break
// out of a filter option (":", "@", quotes, brackets) is rejected.
var colorPattern = regexp.MustCompile(`^(?:#|0x)?[A-Za-z0-9]+$`)

// Validator checks a CompositionRequest and produces a typed Composition
type Validator struct {
	// Output is the render space, used as the default canvas
	Output geometry.Space

	// AllowPrivateNetworks disables the SSRF check on http(s) sources
	AllowPrivateNetworks bool

	// LookupIP resolves source hostnames; defaults to net.LookupIP
	LookupIP func(host string) ([]net.IP, error)

	// LocalRoot is the only directory file:// sources and outputs may name.
	// Empty refuses file:// entirely.
	LocalRoot string
}

// New creates a new Validator for the given render space
func New(output geometry.Space) *Validator {
	return &Validator{Output: output}
}

// ValidateSources checks that every clip and image has exactly one media
// source: an upload at its index or a source URI.
func (v *Validator) ValidateSources(req *schemas.CompositionRequest, uploadedClips, uploadedImages int) error {
	var errs Errors

	if uploadedClips > len(req.Videos) {
		errs.add("videos", "%d uploads for %d clips", uploadedClips, len(req.Videos))
	}
	for i, clip := range req.Videos {
		v.checkSource(&errs, fmt.Sprintf("videos[%d]", i), clip.Source, i < uploadedClips)
	}

	if uploadedImages > len(req.Images) {
		errs.add("images", "%d uploads for %d images", uploadedImages, len(req.Images))
	}
	for i, img := range req.Images {
		v.checkSource(&errs, fmt.Sprintf("images[%d]", i), img.Source, i < uploadedImages)
	}

	if req.Output != "" {
		scheme, _, err := storage.ParseURI(req.Output)
		switch {
		case err != nil:
			errs.add("output", "invalid URI: %v", err)
		case scheme != "file" && scheme != "s3":
			errs.add("output", "scheme '%s' not allowed", scheme)
		case scheme == "file":
			if err := v.checkLocalPath(req.Output); err != nil {
				errs.add("output", "%v", err)
			}
		}
	}

	return errs.err()
}

func (v *Validator) checkSource(errs *Errors, field, source string, uploaded bool) {
	if uploaded {
		if source != "" {
			errs.add(field+".source", "given together with an upload")
		}
		return
	}
	if source == "" {
		errs.add(field, "no upload and no source")
		return
	}

	scheme, _, err := storage.ParseURI(source)
	if err != nil {
		errs.add(field+".source", "invalid URI: %v", err)
		return
	}
	if !storage.IsAllowedScheme(scheme) {
		errs.add(field+".source", "scheme '%s' not allowed", scheme)
		return
	}
	if scheme == "file" {
		if err := v.checkLocalPath(source); err != nil {
			errs.add(field+".source", "%v", err)
		}
		return
	}
	if (scheme == "http" || scheme == "https") && !v.AllowPrivateNetworks {
		if err := ValidateHTTPURIWith(source, v.lookup()); err != nil {
			errs.add(field+".source", "security check failed: %v", err)
		}
	}
}

// checkLocalPath confines a file:// URI to LocalRoot after resolving
// symlinks.
func (v *Validator) checkLocalPath(uri string) error {
	if v.LocalRoot == "" {
		return fmt.Errorf("file:// URIs are not enabled")
	}

	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid URI: %v", err)
	}
	if u.Host != "" && u.Host != "localhost" {
		return fmt.Errorf("file:// URI must not name a host")
	}
	if !filepath.IsAbs(u.Path) {
		return fmt.Errorf("file:// path must be absolute")
	}

	root := resolve(filepath.Clean(v.LocalRoot))
	path := resolve(filepath.Clean(u.Path))
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside %s", u.Path, v.LocalRoot)
	}
	return nil
}

// resolve follows symlinks in the longest existing prefix of path, so an
// output that is not written yet still resolves through its parents.
func resolve(path string) string {
	var rest []string
	for dir := path; ; dir = filepath.Dir(dir) {
		if r, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(append([]string{r}, rest...)...)
		}
		if filepath.Dir(dir) == dir {
			return path
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
	}
}

func (v *Validator) lookup() func(string) ([]net.IP, error) {
	if v.LookupIP != nil {
		return v.LookupIP
	}
	return net.LookupIP
}

// Validate checks every attribute of req, applies defaults and returns the
// typed composition. All violations are reported together as Errors.
func (v *Validator) Validate(req *schemas.CompositionRequest) (*composition.Composition, error) {
	var errs Errors

	comp := &composition.Composition{
		Canvas: v.Output,
		Output: req.Output,
	}

	if req.CanvasWidth < 0 || req.CanvasHeight < 0 {
		errs.add("canvas", "dimensions must not be negative")
	}
	if req.CanvasWidth > 0 {
		comp.Canvas.Width = req.CanvasWidth
	}
	if req.CanvasHeight > 0 {
		comp.Canvas.Height = req.CanvasHeight
	}

	for i, spec := range req.Videos {
		comp.Clips = append(comp.Clips, v.clip(&errs, i, spec))
	}
	for i, spec := range req.Images {
		img := v.image(&errs, i, spec)
		img.MediaIndex = len(req.Videos) + i
		comp.Images = append(comp.Images, img)
	}
	for i, spec := range req.Texts {
		comp.Texts = append(comp.Texts, v.text(&errs, i, spec))
	}

	if err := errs.err(); err != nil {
		return nil, err
	}
	return comp, nil
}

func (v *Validator) clip(errs *Errors, i int, spec schemas.ClipSpec) composition.Clip {
	field := fmt.Sprintf("videos[%d]", i)
	clip := composition.Clip{
		MediaIndex: i,
		Source:     spec.Source,
		X:          required(errs, field+".x", spec.X),
		Y:          required(errs, field+".y", spec.Y),
		Speed:      optional(spec.Speed, 1.0),
		Volume:     optional(spec.Volume, 100),
	}

	switch {
	case spec.Width != nil && spec.Height != nil:
		if *spec.Width <= 0 || *spec.Height <= 0 {
			errs.add(field+".width", "width and height must be positive")
		}
		clip.Size = &composition.Size{Width: *spec.Width, Height: *spec.Height}
	case spec.Width != nil || spec.Height != nil:
		errs.add(field+".width", "width and height must be given together")
	}

	if clip.Speed <= 0 {
		errs.add(field+".speed", "must be positive, got %v", clip.Speed)
	}
	if clip.Volume < 0 {
		errs.add(field+".volume", "must not be negative, got %v", clip.Volume)
	}

	if i == 0 {
		if spec.Duration == nil {
			errs.add(field+".duration", "required")
		} else if *spec.Duration <= 0 {
			errs.add(field+".duration", "must be positive, got %v", float64(*spec.Duration))
		} else {
			clip.Duration = float64(*spec.Duration)
		}
		return clip
	}

	w := window(errs, field, spec.StartTime, spec.EndTime)
	clip.Window = &w
	return clip
}

func (v *Validator) image(errs *Errors, i int, spec schemas.ImageSpec) composition.Image {
	field := fmt.Sprintf("images[%d]", i)
	img := composition.Image{
		Source:       spec.Source,
		X:            required(errs, field+".x", spec.X),
		Y:            required(errs, field+".y", spec.Y),
		Width:        required(errs, field+".width", spec.Width),
		Height:       required(errs, field+".height", spec.Height),
		BorderRadius: optional(spec.BorderRadius, 0),
		Opacity:      optional(spec.Opacity, 100),
		Window:       window(errs, field, spec.StartTime, spec.EndTime),
	}

	if spec.Width != nil && spec.Height != nil && (img.Width <= 0 || img.Height <= 0) {
		errs.add(field+".width", "width and height must be positive")
	}
	if img.BorderRadius < 0 {
		errs.add(field+".borderRadius", "must not be negative, got %v", img.BorderRadius)
	}
	checkOpacity(errs, field, img.Opacity)

	return img
}

func (v *Validator) text(errs *Errors, i int, spec schemas.TextSpec) composition.Text {
	field := fmt.Sprintf("texts[%d]", i)
	txt := composition.Text{
		X:          required(errs, field+".x", spec.X),
		Y:          required(errs, field+".y", spec.Y),
		FontSize:   required(errs, field+".fontSize", spec.FontSize),
		Opacity:    optional(spec.Opacity, 100),
		Background: spec.BackgroundColor,
		Bold:       spec.FontWeight == "bold",
		Underline:  spec.IsUnderline,
		Window:     window(errs, field, spec.StartTime, spec.EndTime),
	}

	if spec.Description == nil || *spec.Description == "" {
		errs.add(field+".description", "required")
	} else {
		txt.Description = *spec.Description
	}

	if spec.Color == nil {
		errs.add(field+".color", "required")
	} else {
		txt.Color = *spec.Color
		checkColor(errs, field+".color", txt.Color)
	}

	if spec.FontSize != nil && txt.FontSize <= 0 {
		errs.add(field+".fontSize", "must be positive, got %v", txt.FontSize)
	}
	checkOpacity(errs, field, txt.Opacity)

	if txt.Background != "" {
		checkColor(errs, field+".backgroundColor", txt.Background)
		txt.Padding = required(errs, field+".padding", spec.Padding)
		if txt.Padding < 0 {
			errs.add(field+".padding", "must not be negative, got %v", txt.Padding)
		}
	}

	return txt
}

func required(errs *Errors, field string, v *float64) float64 {
	if v == nil {
		errs.add(field, "required")
		return 0
	}
	return *v
}

func optional(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func window(errs *Errors, field string, start, end *schemas.Seconds) composition.Window {
	var w composition.Window
	if start == nil {
		errs.add(field+".startTime", "required")
	} else {
		w.Start = float64(*start)
	}
	if end == nil {
		errs.add(field+".endTime", "required")
	} else {
		w.End = float64(*end)
	}
	if start == nil || end == nil {
		return w
	}

	if w.Start < 0 {
		errs.add(field+".startTime", "must not be negative, got %v", w.Start)
	}
	if w.Start > w.End {
		errs.add(field+".endTime", "must not precede startTime (%v > %v)", w.Start, w.End)
	}
	return w
}

func checkOpacity(errs *Errors, field string, opacity float64) {
	if opacity < 0 || opacity > 100 {
		errs.add(field+".opacity", "must be within 0..100, got %v", opacity)
	}
}

func checkColor(errs *Errors, field, color string) {
	if !colorPattern.MatchString(color) {
		errs.add(field, "invalid colour %q", color)
	}
}
