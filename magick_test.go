package main

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	name string
	args []string
}

type fakeRunner struct {
	calls  []recordedCall
	failAt int // 1-based call index that fails; 0 never fails
	stderr string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, recordedCall{name: name, args: append([]string(nil), args...)})
	if f.failAt == len(f.calls) {
		return []byte(f.stderr), errors.New("exit status 1")
	}
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFakeMagick(runner *fakeRunner) *MagickCompositor {
	m := NewMagickCompositor("convert", 0, discardLogger())
	m.run = runner
	return m
}

func TestMagickRenderRunsStepsInOrder(t *testing.T) {
	runner := &fakeRunner{}
	m := newFakeMagick(runner)

	err := m.Render(context.Background(), CharacterSubmission{CharacterName: "Aria", CharacterHealth: "75"}, "out.png")
	require.NoError(t, err)

	want := [][]string{
		{"-size", "128x128", "xc:white", "out.png"},
		{"out.png", "-gravity", "North", "-pointsize", "16", "-annotate", "+0+5", "Aria", "out.png"},
		{"out.png", "-fill", "red", "-draw", "rectangle 10,100 118,110", "out.png"},
		{"out.png", "-fill", "green", "-draw", "rectangle 10,100 91,110", "out.png"},
	}
	require.Len(t, runner.calls, len(want))
	for i, call := range runner.calls {
		assert.Equal(t, "convert", call.name)
		assert.Equal(t, want[i], call.args, "step %d", i+1)
	}
}

func TestMagickRenderFullAndEmptyHealth(t *testing.T) {
	runner := &fakeRunner{}
	require.NoError(t, newFakeMagick(runner).Render(context.Background(),
		CharacterSubmission{CharacterName: "Aria", CharacterHealth: "100"}, "out.png"))
	require.Len(t, runner.calls, 4)
	assert.Equal(t, "rectangle 10,100 118,110", runner.calls[3].args[4])

	runner = &fakeRunner{}
	require.NoError(t, newFakeMagick(runner).Render(context.Background(),
		CharacterSubmission{CharacterName: "Aria", CharacterHealth: "0"}, "out.png"))
	require.Len(t, runner.calls, 3, "zero health draws no foreground bar")
}

func TestMagickRenderPassesNameAsOneArgument(t *testing.T) {
	runner := &fakeRunner{}
	name := `"; rm -rf / #`
	require.NoError(t, newFakeMagick(runner).Render(context.Background(),
		CharacterSubmission{CharacterName: name, CharacterHealth: "50"}, "out.png"))

	label := runner.calls[1].args
	require.Len(t, label, 9)
	assert.Equal(t, name, label[7])
}

func TestMagickRenderStopsAtFailedStep(t *testing.T) {
	runner := &fakeRunner{failAt: 2, stderr: "convert: unable to read font\n"}
	err := newFakeMagick(runner).Render(context.Background(),
		CharacterSubmission{CharacterName: "Aria", CharacterHealth: "75"}, "out.png")

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "label", stepErr.Step)
	assert.Equal(t, "convert: unable to read font", stepErr.Stderr)
	assert.Len(t, runner.calls, 2, "no step runs after a failure")
}

func TestMagickRenderRejectsBadHealth(t *testing.T) {
	runner := &fakeRunner{}
	err := newFakeMagick(runner).Render(context.Background(),
		CharacterSubmission{CharacterName: "Aria", CharacterHealth: "plenty"}, "out.png")
	assert.ErrorIs(t, err, ErrInvalidSubmission)
	assert.Empty(t, runner.calls)
}

func TestMagickMissingBinary(t *testing.T) {
	m := NewMagickCompositor("portraitgate-no-such-tool", 0, discardLogger())
	err := m.Render(context.Background(), CharacterSubmission{CharacterName: "Aria", CharacterHealth: "75"},
		filepath.Join(t.TempDir(), "out.png"))
	assert.ErrorIs(t, err, ErrToolNotFound)

	_, err = resolveTool("portraitgate-no-such-tool")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestEscapeAnnotateText(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Aria", "Aria"},
		{"100%", "100%%"},
		{"%w x %h", "%%w x %%h"},
		{"@/etc/passwd", `\@/etc/passwd`},
		{"a@b", "a@b"},
		{`back\slash`, `back\\slash`},
		{"-verbose", "-verbose"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeAnnotateText(tt.in), "escapeAnnotateText(%q)", tt.in)
	}
}

func TestMagickRenderWithImageMagick(t *testing.T) {
	bin, err := exec.LookPath("convert")
	if err != nil {
		t.Skip("ImageMagick convert not on PATH")
	}
	path := filepath.Join(t.TempDir(), "portrait.png")
	m := NewMagickCompositor(bin, 0, discardLogger())
	require.NoError(t, m.Render(context.Background(), CharacterSubmission{CharacterName: "Aria", CharacterHealth: "75"}, path))

	img := decodePNGFile(t, path)
	assert.Equal(t, image.Rect(0, 0, canvasSize, canvasSize), img.Bounds())
	assertRGB(t, img, 20, 105, 0, 128, 0)
	assertRGB(t, img, 110, 105, 255, 0, 0)
	assertRGB(t, img, 64, 80, 255, 255, 255)
}

func decodePNGFile(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func assertRGB(t *testing.T, img image.Image, x, y int, r, g, b uint8) {
	t.Helper()
	c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
	assert.Equal(t, [3]uint8{r, g, b}, [3]uint8{c.R, c.G, c.B}, "pixel at %d,%d", x, y)
}
