package compiler

import (
	"fmt"
	"strconv"

	"github.com/chicogong/media-compositor/pkg/composition"
	"github.com/chicogong/media-compositor/pkg/filtergraph"
	"github.com/chicogong/media-compositor/pkg/geometry"
)

type (
	label  = filtergraph.Label
	filter = filtergraph.Filter
	arg    = filtergraph.Arg
)

// placeCanvas emits the solid background that anchors the timeline
func (c *Compiler) placeCanvas(g *filtergraph.Graph, duration float64) frontier {
	canvas := g.Add(nil, labelCanvas, filtergraph.NewFilter("color",
		filtergraph.KV("c", filtergraph.Raw(c.opts.CanvasColor)),
		filtergraph.KV("s", filtergraph.Raw(fmt.Sprintf("%dx%d", c.opts.Width, c.opts.Height))),
		filtergraph.KV("d", filtergraph.Float(duration)),
	))
	return frontier{video: canvas}
}

// placeClips retimes and scales every clip and overlays it on the frontier.
// The first clip is the always-visible base layer; later clips are gated by
// their window.
func (c *Compiler) placeClips(g *filtergraph.Graph, norm geometry.Normalizer, clips []composition.Clip, f frontier) (frontier, error) {
	for i, clip := range clips {
		if clip.Speed <= 0 {
			return f, fmt.Errorf("clip %d: speed must be positive", i)
		}
		if i > 0 && clip.Window == nil {
			return f, fmt.Errorf("clip %d: enable window is required after the first clip", i)
		}

		pts := filtergraph.Raw(formatFloat(1/clip.Speed) + "*PTS")

		width, height := -1, -1
		if clip.Size != nil {
			size := norm.Size(clip.Size.Width, clip.Size.Height)
			width, height = size.Width, size.Height
		}

		video := g.Add(
			[]label{filtergraph.InputStream(clip.MediaIndex, filtergraph.StreamVideo)},
			label(fmt.Sprintf("v%d", i)),
			filtergraph.NewFilter("setpts", filtergraph.Pos(pts)),
			filtergraph.NewFilter("scale", filtergraph.Pos(filtergraph.Int(width)), filtergraph.Pos(filtergraph.Int(height))),
		)

		audio := g.Add(
			[]label{filtergraph.InputStream(clip.MediaIndex, filtergraph.StreamAudio)},
			label(fmt.Sprintf("a%d", i)),
			filtergraph.NewFilter("asetpts", filtergraph.Pos(pts)),
			filtergraph.NewFilter("atempo", filtergraph.Pos(filtergraph.Float(clip.Speed))),
			filtergraph.NewFilter("volume", filtergraph.Pos(filtergraph.Float(clip.Volume/100))),
		)

		pos := norm.Position(clip.X, clip.Y)
		args := []arg{
			filtergraph.KV("x", filtergraph.Int(pos.X)),
			filtergraph.KV("y", filtergraph.Int(pos.Y)),
		}
		if i > 0 {
			args = append(args, filtergraph.KV("enable", between(*clip.Window)))
		}
		args = append(args, filtergraph.KV("eval", filtergraph.Raw("init")))

		f.video = g.Add([]label{f.video, video}, label(fmt.Sprintf("temp%d", i)), filtergraph.NewFilter("overlay", args...))
		f.audio = append(f.audio, audio)
	}

	return f, nil
}

// mixAudio combines the per-clip audio into the fixed audio terminal
func (c *Compiler) mixAudio(g *filtergraph.Graph, f frontier) frontier {
	if len(f.audio) == 0 {
		return f
	}

	f.mixed = g.Add(f.audio, LabelAudioOut, filtergraph.NewFilter("amix",
		filtergraph.KV("inputs", filtergraph.Int(len(f.audio))),
	))
	f.audio = nil
	return f
}

// placeImages scales, optionally masks, and overlays every image
func (c *Compiler) placeImages(g *filtergraph.Graph, norm geometry.Normalizer, images []composition.Image, f frontier) (frontier, error) {
	for j, img := range images {
		if img.Window.Start > img.Window.End {
			return f, fmt.Errorf("image %d: window starts after it ends", j)
		}

		size := norm.Size(img.Width, img.Height)
		radius := norm.Radius(img.BorderRadius)
		opacity := img.Opacity / 100

		chain := []filter{filtergraph.NewFilter("scale",
			filtergraph.Pos(filtergraph.Int(size.Width)),
			filtergraph.Pos(filtergraph.Int(size.Height)),
		)}
		if radius > 0 || opacity < 1 {
			chain = append(chain, filtergraph.NewFilter("format", filtergraph.Pos(filtergraph.Raw("rgba"))))
		}
		if opacity < 1 {
			chain = append(chain, filtergraph.NewFilter("colorchannelmixer",
				filtergraph.KV("aa", filtergraph.Float(opacity)),
			))
		}

		in := []label{filtergraph.InputStream(img.MediaIndex, filtergraph.StreamVideo)}
		out := label(fmt.Sprintf("img%d", j))
		if radius > 0 {
			scaled := g.Add(in, label(fmt.Sprintf("imgscaled%d", j)), chain...)
			g.Add([]label{scaled}, out, roundedCorners(radius))
		} else {
			g.Add(in, out, chain...)
		}

		pos := norm.Position(img.X, img.Y)
		f.video = g.Add([]label{f.video, out}, label(fmt.Sprintf("imgout%d", j)), filtergraph.NewFilter("overlay",
			filtergraph.KV("x", filtergraph.Int(pos.X)),
			filtergraph.KV("y", filtergraph.Int(pos.Y)),
			filtergraph.KV("enable", between(img.Window)),
		))
	}

	return f, nil
}

// roundedCorners clears the alpha of pixels that lie in a corner square of
// side r but outside the quarter circle of radius r centred on its inner
// vertex. The same radius applies to both axes and all four corners.
func roundedCorners(r int) filter {
	inside := fmt.Sprintf(
		"if(gt(pow(max(0,max(%[1]d-X,X-(W-1-%[1]d))),2)+pow(max(0,max(%[1]d-Y,Y-(H-1-%[1]d))),2),pow(%[1]d,2)),0,alpha(X,Y))",
		r,
	)
	return filtergraph.NewFilter("geq",
		filtergraph.KV("r", filtergraph.Expr("r(X,Y)")),
		filtergraph.KV("g", filtergraph.Expr("g(X,Y)")),
		filtergraph.KV("b", filtergraph.Expr("b(X,Y)")),
		filtergraph.KV("a", filtergraph.Expr(inside)),
	)
}

// placeTexts draws every text centred on its anchor. The last text writes
// the video terminal directly.
func (c *Compiler) placeTexts(g *filtergraph.Graph, norm geometry.Normalizer, texts []composition.Text, f frontier) frontier {
	for t, txt := range texts {
		out := label(fmt.Sprintf("text%d", t))
		if t == len(texts)-1 {
			out = LabelVideoOut
		}

		pos := norm.Position(txt.X, txt.Y)
		alpha := "@" + formatFloat(txt.Opacity/100)

		// expansion=none keeps '%' literal instead of starting a %{...} function
		args := []arg{
			filtergraph.KV("text", filtergraph.Text(txt.Description)),
			filtergraph.KV("expansion", filtergraph.Raw("none")),
			filtergraph.KV("x", filtergraph.Raw(fmt.Sprintf("%d-tw/2", pos.X))),
			filtergraph.KV("y", filtergraph.Raw(fmt.Sprintf("%d-th/2", pos.Y))),
			filtergraph.KV("fontsize", filtergraph.Int(norm.FontSize(txt.FontSize))),
			filtergraph.KV("fontcolor", filtergraph.Raw(txt.Color+alpha)),
		}

		if txt.Background != "" {
			args = append(args,
				filtergraph.KV("box", filtergraph.Int(1)),
				filtergraph.KV("boxcolor", filtergraph.Raw(txt.Background+alpha)),
				filtergraph.KV("boxborderw", filtergraph.Int(norm.Padding(txt.Padding))),
			)
		}

		// drawtext has no underline; a border stroke in the text colour stands in
		if txt.Underline {
			args = append(args,
				filtergraph.KV("borderw", filtergraph.Int(1)),
				filtergraph.KV("bordercolor", filtergraph.Raw(txt.Color+alpha)),
			)
		}

		font := c.opts.FontFamily
		if txt.Bold {
			font += "-Bold"
		}
		args = append(args,
			filtergraph.KV("font", filtergraph.Text(font)),
			filtergraph.KV("enable", between(txt.Window)),
		)

		f.video = g.Add([]label{f.video}, out, filtergraph.NewFilter("drawtext", args...))
	}

	return f
}

// finish guarantees the video terminal is produced by an explicit node
func (c *Compiler) finish(g *filtergraph.Graph, f frontier) frontier {
	if f.video == LabelVideoOut {
		return f
	}
	f.video = g.Add([]label{f.video}, LabelVideoOut, filtergraph.NewFilter("null"))
	return f
}

func between(w composition.Window) filtergraph.Expr {
	return filtergraph.Expr(fmt.Sprintf("between(t,%s,%s)", formatFloat(w.Start), formatFloat(w.End)))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
