package main

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderNative(t *testing.T, name, health string) image.Image {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portrait.png")
	err := NativeCompositor{}.Render(context.Background(), CharacterSubmission{CharacterName: name, CharacterHealth: health}, path)
	require.NoError(t, err)
	return decodePNGFile(t, path)
}

func TestNativeRenderGeometry(t *testing.T) {
	img := renderNative(t, "Aria", "75")
	require.Equal(t, image.Rect(0, 0, canvasSize, canvasSize), img.Bounds())

	// foreground covers 10..91, background shows through to 118
	assertRGB(t, img, barLeft, barTop, 0, 128, 0)
	assertRGB(t, img, 91, barBottom, 0, 128, 0)
	assertRGB(t, img, 92, 105, 255, 0, 0)
	assertRGB(t, img, barRight, barBottom, 255, 0, 0)

	// outside the bar stays white
	assertRGB(t, img, barLeft-1, 105, 255, 255, 255)
	assertRGB(t, img, barRight+1, 105, 255, 255, 255)
	assertRGB(t, img, 64, barTop-1, 255, 255, 255)
	assertRGB(t, img, 64, barBottom+1, 255, 255, 255)
}

func TestNativeRenderHealthExtremes(t *testing.T) {
	full := renderNative(t, "Aria", "100")
	assertRGB(t, full, barRight, 105, 0, 128, 0)

	empty := renderNative(t, "Aria", "0")
	assertRGB(t, empty, barLeft, 105, 255, 0, 0)
	assertRGB(t, empty, barRight, 105, 255, 0, 0)
}

func TestNativeRenderBackgroundBarIgnoresInput(t *testing.T) {
	for _, health := range []string{"0", "33", "100"} {
		img := renderNative(t, "Someone Else", health)
		for x := barLeft; x <= barRight; x++ {
			c := color.RGBAModel.Convert(img.At(x, barTop)).(color.RGBA)
			assert.True(t, c == nativeBackground || c == nativeForeground, "health %s x=%d: %v", health, x, c)
		}
	}
}

func TestNativeRenderDrawsLabelNearTop(t *testing.T) {
	img := renderNative(t, "Aria", "75")

	dark := 0
	for y := 0; y < 30; y++ {
		for x := 0; x < canvasSize; x++ {
			if color.RGBAModel.Convert(img.At(x, y)).(color.RGBA) == nativeLabel {
				dark++
			}
		}
	}
	assert.Positive(t, dark, "label pixels in the top band")

	blank := renderNative(t, " ", "100")
	for y := 0; y < 30; y++ {
		for x := 0; x < canvasSize; x++ {
			require.Equal(t, nativeCanvas, color.RGBAModel.Convert(blank.At(x, y)).(color.RGBA))
		}
	}
}

func TestNativeRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NativeCompositor{}.Render(ctx, CharacterSubmission{CharacterName: "Aria", CharacterHealth: "75"},
		filepath.Join(t.TempDir(), "portrait.png"))
	assert.ErrorIs(t, err, context.Canceled)
}
