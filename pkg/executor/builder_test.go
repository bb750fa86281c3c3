package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/media-compositor/pkg/compiler"
	"github.com/chicogong/media-compositor/pkg/composition"
	"github.com/chicogong/media-compositor/pkg/geometry"
)

func compile(t *testing.T, comp *composition.Composition) *compiler.Program {
	t.Helper()
	prog, err := compiler.New(compiler.DefaultOptions()).Compile(comp)
	require.NoError(t, err)
	return prog
}

func clipAndImage() *composition.Composition {
	return &composition.Composition{
		Canvas: geometry.NewSpace(1920, 1080),
		Clips: []composition.Clip{
			{MediaIndex: 0, Speed: 1, Volume: 100, Duration: 4},
		},
		Images: []composition.Image{
			{MediaIndex: 1, Width: 100, Height: 100, Opacity: 100, Window: composition.Window{Start: 0, End: 4}},
		},
	}
}

func TestCommandBuilder_Build(t *testing.T) {
	prog := compile(t, clipAndImage())

	cmd, err := NewCommandBuilder("").Build(prog, []string{"/w/video_0.mp4"}, []string{"/w/image_0.png"}, "/w/output.mp4")
	require.NoError(t, err)

	expected := []string{
		"ffmpeg",
		"-i", "/w/video_0.mp4",
		"-i", "/w/image_0.png",
		"-filter_complex", prog.Graph.String(),
		"-map", "[vout]",
		"-map", "[aout]",
		"-y", "/w/output.mp4",
	}
	assert.Equal(t, expected, cmd.Args)
	assert.Equal(t, "/w/output.mp4", cmd.Output)
	assert.Equal(t, 4.0, cmd.Duration)
}

func TestCommandBuilder_NoClipsMapsVideoOnly(t *testing.T) {
	prog := compile(t, &composition.Composition{
		Canvas: geometry.NewSpace(1920, 1080),
		Images: []composition.Image{
			{Width: 100, Height: 100, Opacity: 100, Window: composition.Window{Start: 0, End: 1}},
		},
	})

	cmd, err := NewCommandBuilder("/opt/ffmpeg/bin/ffmpeg").Build(prog, nil, []string{"image_0.png"}, "out.mp4")
	require.NoError(t, err)

	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cmd.Args[0])
	assert.NotContains(t, cmd.Args, "[aout]")
	assert.Contains(t, cmd.Args, "[vout]")
}

func TestCommandBuilder_Errors(t *testing.T) {
	prog := compile(t, clipAndImage())
	b := NewCommandBuilder("")

	tests := []struct {
		name   string
		clips  []string
		images []string
		output string
		errMsg string
	}{
		{"missing clip file", nil, []string{"i.png"}, "o.mp4", "expects 1 clips"},
		{"surplus image file", []string{"v.mp4"}, []string{"i.png", "j.png"}, "o.mp4", "expects 1 images"},
		{"empty clip path", []string{""}, []string{"i.png"}, "o.mp4", "clip 0 has no file"},
		{"no output", []string{"v.mp4"}, []string{"i.png"}, "", "output path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(prog, tt.clips, tt.images, tt.output)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := b.Build(nil, nil, nil, "o.mp4")
	assert.Error(t, err)
}
