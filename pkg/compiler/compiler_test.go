package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/media-compositor/pkg/composition"
	"github.com/chicogong/media-compositor/pkg/filtergraph"
	"github.com/chicogong/media-compositor/pkg/filtergraph/fgtest"
	"github.com/chicogong/media-compositor/pkg/geometry"
)

func halfCanvas() geometry.Space {
	return geometry.NewSpace(960, 540)
}

func baseClip() composition.Clip {
	return composition.Clip{
		MediaIndex: 0,
		Speed:      1,
		Volume:     100,
		Duration:   5,
	}
}

func window(start, end float64) *composition.Window {
	return &composition.Window{Start: start, End: end}
}

func TestCompile_Empty(t *testing.T) {
	c := New(DefaultOptions())

	prog, err := c.Compile(&composition.Composition{Canvas: halfCanvas()})
	require.NoError(t, err)

	assert.Equal(t, "color=c=black:s=1920x1080:d=10[canvas];[canvas]null[vout];", prog.Graph.String())
	assert.False(t, prog.HasAudio())
	assert.Equal(t, []filtergraph.Label{LabelVideoOut}, prog.Terminals())
	assert.Equal(t, 10.0, prog.Duration)
}

func TestCompile_NilComposition(t *testing.T) {
	_, err := New(DefaultOptions()).Compile(nil)
	assert.Error(t, err)
}

func TestCompile_SingleClip(t *testing.T) {
	c := New(DefaultOptions())

	prog, err := c.Compile(&composition.Composition{
		Canvas: halfCanvas(),
		Clips:  []composition.Clip{baseClip()},
	})
	require.NoError(t, err)

	expected := "color=c=black:s=1920x1080:d=5[canvas];" +
		"[0:v]setpts=1*PTS,scale=-1:-1[v0];" +
		"[0:a]asetpts=1*PTS,atempo=1,volume=1[a0];" +
		"[canvas][v0]overlay=x=0:y=0:eval=init[temp0];" +
		"[a0]amix=inputs=1[aout];" +
		"[temp0]null[vout];"
	assert.Equal(t, expected, prog.Graph.String())
	assert.True(t, prog.HasAudio())
	assert.Equal(t, []filtergraph.Label{LabelVideoOut, LabelAudioOut}, prog.Terminals())
}

func TestCompile_ClipRetimingAndScaling(t *testing.T) {
	clip := baseClip()
	clip.Speed = 2
	clip.Volume = 50
	clip.X, clip.Y = 100, 50
	clip.Size = &composition.Size{Width: 480, Height: 270}

	prog, err := New(DefaultOptions()).Compile(&composition.Composition{
		Canvas: halfCanvas(),
		Clips:  []composition.Clip{clip},
	})
	require.NoError(t, err)

	out := prog.Graph.String()
	assert.Contains(t, out, "[0:v]setpts=0.5*PTS,scale=960:540[v0];")
	assert.Contains(t, out, "[0:a]asetpts=0.5*PTS,atempo=2,volume=0.5[a0];")
	assert.Contains(t, out, "[canvas][v0]overlay=x=200:y=100:eval=init[temp0];")
}

func TestCompile_MultipleClips(t *testing.T) {
	second := baseClip()
	second.MediaIndex = 1
	second.Window = window(2, 4)

	third := baseClip()
	third.MediaIndex = 2
	third.Window = window(3, 6.5)

	prog, err := New(DefaultOptions()).Compile(&composition.Composition{
		Canvas: halfCanvas(),
		Clips:  []composition.Clip{baseClip(), second, third},
	})
	require.NoError(t, err)

	overlays := prog.Graph.NodesWith("overlay")
	require.Len(t, overlays, 3)

	_, gated := overlays[0].Chain[0].Arg("enable")
	assert.False(t, gated, "first clip is the base layer")

	enable, ok := overlays[1].Chain[0].Arg("enable")
	require.True(t, ok)
	assert.Equal(t, filtergraph.Expr("between(t,2,4)"), enable)

	enable, ok = overlays[2].Chain[0].Arg("enable")
	require.True(t, ok)
	assert.Equal(t, filtergraph.Expr("between(t,3,6.5)"), enable)

	// each overlay stacks on the previous one
	assert.Equal(t, []filtergraph.Label{"canvas", "v0"}, overlays[0].Inputs)
	assert.Equal(t, []filtergraph.Label{"temp0", "v1"}, overlays[1].Inputs)
	assert.Equal(t, []filtergraph.Label{"temp1", "v2"}, overlays[2].Inputs)

	mixes := prog.Graph.NodesWith("amix")
	require.Len(t, mixes, 1)
	assert.Equal(t, []filtergraph.Label{"a0", "a1", "a2"}, mixes[0].Inputs)
	inputs, _ := mixes[0].Chain[0].Arg("inputs")
	assert.Equal(t, filtergraph.Int(3), inputs)
}

func TestCompile_ClipErrors(t *testing.T) {
	tests := []struct {
		name   string
		clips  func() []composition.Clip
		errMsg string
	}{
		{
			name: "first clip without duration",
			clips: func() []composition.Clip {
				c := baseClip()
				c.Duration = 0
				return []composition.Clip{c}
			},
			errMsg: "duration is required",
		},
		{
			name: "later clip without window",
			clips: func() []composition.Clip {
				c := baseClip()
				c.MediaIndex = 1
				return []composition.Clip{baseClip(), c}
			},
			errMsg: "enable window is required",
		},
		{
			name: "zero speed",
			clips: func() []composition.Clip {
				c := baseClip()
				c.Speed = 0
				return []composition.Clip{c}
			},
			errMsg: "speed must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(DefaultOptions()).Compile(&composition.Composition{
				Canvas: halfCanvas(),
				Clips:  tt.clips(),
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestCompile_ImageWithoutRadius(t *testing.T) {
	prog, err := New(DefaultOptions()).Compile(&composition.Composition{
		Canvas: halfCanvas(),
		Clips:  []composition.Clip{baseClip()},
		Images: []composition.Image{{
			MediaIndex: 1,
			X:          10, Y: 20,
			Width: 100, Height: 50,
			Opacity: 100,
			Window:  composition.Window{Start: 1, End: 3},
		}},
	})
	require.NoError(t, err)

	assert.Empty(t, prog.Graph.NodesWith("geq"))

	img := prog.Graph.Producer("img0")
	require.NotNil(t, img)
	assert.Equal(t, []filtergraph.Label{"1:v"}, img.Inputs)
	require.Len(t, img.Chain, 1, "full opacity leaves the image untouched")

	out := prog.Graph.String()
	assert.Contains(t, out, "[1:v]scale=200:100[img0];")
	assert.Contains(t, out, "[temp0][img0]overlay=x=20:y=40:enable='between(t,1,3)'[imgout0];")
	assert.Contains(t, out, "[imgout0]null[vout];")
}

func TestCompile_ImageWithRadius(t *testing.T) {
	prog, err := New(DefaultOptions()).Compile(&composition.Composition{
		Canvas: halfCanvas(),
		Images: []composition.Image{{
			MediaIndex: 0,
			Width:      100, Height: 100,
			BorderRadius: 10,
			Opacity:      100,
			Window:       composition.Window{Start: 0, End: 2},
		}},
	})
	require.NoError(t, err)

	masks := prog.Graph.NodesWith("geq")
	require.Len(t, masks, 1)
	assert.Equal(t, filtergraph.Label("img0"), masks[0].Output)
	assert.Equal(t, []filtergraph.Label{"imgscaled0"}, masks[0].Inputs)

	a, ok := masks[0].Chain[0].Arg("a")
	require.True(t, ok)
	assert.Contains(t, string(a.(filtergraph.Expr)), "pow(20,2)", "radius scales with the horizontal ratio")

	scaled := prog.Graph.Producer("imgscaled0")
	require.NotNil(t, scaled)
	assert.True(t, scaled.Has("format"))

	overlay := prog.Graph.Producer("imgout0")
	require.NotNil(t, overlay)
	assert.Equal(t, []filtergraph.Label{"canvas", "img0"}, overlay.Inputs)
}

func TestCompile_ImageOpacity(t *testing.T) {
	prog, err := New(DefaultOptions()).Compile(&composition.Composition{
		Canvas: halfCanvas(),
		Images: []composition.Image{{
			Width: 100, Height: 100,
			Opacity: 40,
			Window:  composition.Window{Start: 0, End: 2},
		}},
	})
	require.NoError(t, err)

	img := prog.Graph.Producer("img0")
	require.NotNil(t, img)
	mixer, ok := img.Filter("colorchannelmixer")
	require.True(t, ok)
	aa, _ := mixer.Arg("aa")
	assert.Equal(t, filtergraph.Float(0.4), aa)
}

func TestCompile_ImageInvertedWindow(t *testing.T) {
	_, err := New(DefaultOptions()).Compile(&composition.Composition{
		Canvas: halfCanvas(),
		Images: []composition.Image{{
			Width: 100, Height: 100,
			Opacity: 100,
			Window:  composition.Window{Start: 5, End: 2},
		}},
	})
	assert.Error(t, err)
}

func TestCompile_Text(t *testing.T) {
	base := composition.Text{
		X: 480, Y: 270,
		Description: "Hello",
		FontSize:    24,
		Color:       "white",
		Opacity:     100,
		Window:      composition.Window{Start: 0, End: 5},
	}

	tests := []struct {
		name     string
		mutate   func(*composition.Text)
		contains []string
		absent   []string
	}{
		{
			name: "plain",
			contains: []string{
				"[canvas]drawtext=text=Hello:expansion=none:x=960-tw/2:y=540-th/2:fontsize=48:fontcolor=white@1:font=Arial:enable='between(t,0,5)'[vout];",
			},
			absent: []string{"box=", "borderw=", "null"},
		},
		{
			name: "background box",
			mutate: func(tx *composition.Text) {
				tx.Background = "black"
				tx.Padding = 10
				tx.Opacity = 50
			},
			contains: []string{"fontcolor=white@0.5:box=1:boxcolor=black@0.5:boxborderw=20"},
			absent:   []string{"borderw=1"},
		},
		{
			name:     "underline",
			mutate:   func(tx *composition.Text) { tx.Underline = true },
			contains: []string{"borderw=1:bordercolor=white@1"},
			absent:   []string{"box=1"},
		},
		{
			name:     "bold",
			mutate:   func(tx *composition.Text) { tx.Bold = true },
			contains: []string{"font=Arial-Bold:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txt := base
			if tt.mutate != nil {
				tt.mutate(&txt)
			}

			prog, err := New(DefaultOptions()).Compile(&composition.Composition{
				Canvas: halfCanvas(),
				Texts:  []composition.Text{txt},
			})
			require.NoError(t, err)

			out := prog.Graph.String()
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestCompile_TextSurvivesGraphParsing(t *testing.T) {
	descriptions := []string{
		"it's",
		"10:30",
		"one, two",
		`C:\temp\`,
		"100% %{pts}",
		"[vout];",
		"first line\nsecond line",
	}

	for _, desc := range descriptions {
		t.Run(desc, func(t *testing.T) {
			prog, err := New(DefaultOptions()).Compile(&composition.Composition{
				Canvas: halfCanvas(),
				Texts: []composition.Text{{
					X: 480, Y: 270,
					Description: desc,
					FontSize:    24,
					Color:       "white",
					Opacity:     100,
					Bold:        true,
					Window:      composition.Window{Start: 0, End: 5},
				}},
			})
			require.NoError(t, err)

			filters, err := fgtest.Parse(prog.Graph.String())
			require.NoError(t, err)

			var drawtext *fgtest.Filter
			for i := range filters {
				if filters[i].Name == "drawtext" {
					drawtext = &filters[i]
				}
			}
			require.NotNil(t, drawtext)
			assert.Equal(t, []string{"vout"}, drawtext.Outputs)

			text, _ := drawtext.Option("text")
			assert.Equal(t, desc, text)
			expansion, _ := drawtext.Option("expansion")
			assert.Equal(t, "none", expansion)
			font, _ := drawtext.Option("font")
			assert.Equal(t, "Arial-Bold", font)
			enable, _ := drawtext.Option("enable")
			assert.Equal(t, "between(t,0,5)", enable)
		})
	}
}

func TestCompile_LastTextWritesVideoOut(t *testing.T) {
	txt := composition.Text{
		Description: "x",
		FontSize:    10,
		Color:       "red",
		Opacity:     100,
		Window:      composition.Window{Start: 0, End: 1},
	}

	prog, err := New(DefaultOptions()).Compile(&composition.Composition{
		Canvas: halfCanvas(),
		Texts:  []composition.Text{txt, txt, txt},
	})
	require.NoError(t, err)

	draws := prog.Graph.NodesWith("drawtext")
	require.Len(t, draws, 3)
	assert.Equal(t, filtergraph.Label("text0"), draws[0].Output)
	assert.Equal(t, filtergraph.Label("text1"), draws[1].Output)
	assert.Equal(t, LabelVideoOut, draws[2].Output)
	assert.Empty(t, prog.Graph.NodesWith("null"))
}

func TestCompile_LayerOrder(t *testing.T) {
	prog, err := New(DefaultOptions()).Compile(&composition.Composition{
		Canvas: halfCanvas(),
		Clips:  []composition.Clip{baseClip()},
		Images: []composition.Image{{
			MediaIndex: 1,
			Width:      10, Height: 10,
			Opacity: 100,
			Window:  composition.Window{Start: 0, End: 1},
		}},
		Texts: []composition.Text{{
			Description: "top",
			FontSize:    10,
			Color:       "white",
			Opacity:     100,
			Window:      composition.Window{Start: 0, End: 1},
		}},
	})
	require.NoError(t, err)

	var order []string
	for _, n := range prog.Graph.Nodes {
		order = append(order, string(n.Output))
	}
	assert.Equal(t, []string{"canvas", "v0", "a0", "temp0", "aout", "img0", "imgout0", "vout"}, order)
	assert.Equal(t, []filtergraph.Label{"imgout0"}, prog.Graph.Producer("vout").Inputs)
}

func TestCompile_CustomOptions(t *testing.T) {
	c := New(Options{Width: 1280, Height: 720, DefaultDuration: 3, FontFamily: "DejaVu Sans", CanvasColor: "white"})
	assert.Equal(t, 1280, c.Options().Width)

	prog, err := c.Compile(&composition.Composition{
		Canvas: geometry.NewSpace(640, 360),
		Texts: []composition.Text{{
			X: 320, Y: 180,
			Description: "hi",
			FontSize:    12,
			Color:       "black",
			Opacity:     100,
			Bold:        true,
			Window:      composition.Window{Start: 0, End: 1},
		}},
	})
	require.NoError(t, err)

	out := prog.Graph.String()
	assert.Contains(t, out, "color=c=white:s=1280x720:d=3[canvas];")
	assert.Contains(t, out, "x=640-tw/2:y=360-th/2:fontsize=24")
	assert.Contains(t, out, "font=DejaVu Sans-Bold:")
}

func TestNew_FillsDefaults(t *testing.T) {
	opts := New(Options{}).Options()
	assert.Equal(t, DefaultOptions(), opts)
}
