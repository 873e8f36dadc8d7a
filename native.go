package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	nativeCanvas     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	nativeLabel      = color.RGBA{A: 255}
	nativeBackground = color.RGBA{R: 255, A: 255}
	nativeForeground = color.RGBA{G: 128, A: 255} // ImageMagick "green" is #008000
)

// NativeCompositor draws the same portrait as MagickCompositor in-process,
// for machines without ImageMagick.
type NativeCompositor struct{}

func (NativeCompositor) Render(ctx context.Context, sub CharacterSubmission, path string) error {
	health, err := parseHealth(sub.CharacterHealth)
	if err != nil {
		return err
	}

	img := image.NewRGBA(image.Rect(0, 0, canvasSize, canvasSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(nativeCanvas), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(nativeLabel),
		Face: face,
	}
	name := strings.TrimSpace(sub.CharacterName)
	width := d.MeasureString(name).Ceil()
	d.Dot = fixed.P((canvasSize-width)/2, labelOffsetY+face.Metrics().Ascent.Ceil())
	d.DrawString(name)

	if err := ctx.Err(); err != nil {
		return &StepError{Step: "label", Err: err}
	}

	fillRect(img, barLeft, barTop, barRight, barBottom, nativeBackground)
	if health > 0 {
		fillRect(img, barLeft, barTop, foregroundRight(health), barBottom, nativeForeground)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return &StepError{Step: "encode", Err: err}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write portrait: %w", err)
	}
	return nil
}

// fillRect paints the rectangle with inclusive corners, like ImageMagick's
// "rectangle x0,y0 x1,y1" primitive.
func fillRect(img draw.Image, x0, y0, x1, y1 int, c color.Color) {
	r := image.Rect(x0, y0, x1+1, y1+1)
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}
