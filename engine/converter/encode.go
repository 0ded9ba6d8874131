package converter

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

// backgroundThreshold is the minimum channel value treated as page background
const backgroundThreshold = 0xfa

// encodeImage turns a rendered page into file bytes. The returned image is the one that was
// encoded, so dimensions reported to callers always match the file.
func encodeImage(img image.Image, opts Options) ([]byte, image.Image, error) {
	var out, encoded image.Image
	var format imaging.Format
	var encodeOpts []imaging.EncodeOption

	switch {
	case opts.Format == FormatJPEG:
		out = flatten(img)
		format = imaging.JPEG
		encodeOpts = append(encodeOpts, imaging.JPEGQuality(opts.JPEGQuality))
	case opts.Transparent:
		cleared := clearBackground(img)
		out, encoded = cleared, translucent{cleared}
		format = imaging.PNG
	default:
		out = flatten(img)
		format = imaging.PNG
	}

	if encoded == nil {
		encoded = out
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, encoded, format, encodeOpts...); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), out, nil
}

// translucent makes the PNG encoder keep the alpha channel even when no pixel was cleared
type translucent struct {
	*image.NRGBA
}

func (translucent) Opaque() bool { return false }

// flatten composites the image onto opaque white so no alpha channel survives encoding
func flatten(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}

// clearBackground makes the white page background transparent. Only white reachable from
// the image border is cleared, so white areas enclosed by ink stay opaque.
func clearBackground(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	if w == 0 || h == 0 {
		return dst
	}

	isBackground := func(x, y int) bool {
		i := y*dst.Stride + x*4
		p := dst.Pix[i : i+4 : i+4]
		return p[3] == 0xff && p[0] >= backgroundThreshold && p[1] >= backgroundThreshold && p[2] >= backgroundThreshold
	}
	erase := func(x, y int) {
		dst.Pix[y*dst.Stride+x*4+3] = 0
	}

	stack := make([]image.Point, 0, 2*(w+h))
	push := func(x, y int) {
		if isBackground(x, y) {
			erase(x, y)
			stack = append(stack, image.Point{X: x, Y: y})
		}
	}
	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.X > 0 {
			push(p.X-1, p.Y)
		}
		if p.X < w-1 {
			push(p.X+1, p.Y)
		}
		if p.Y > 0 {
			push(p.X, p.Y-1)
		}
		if p.Y < h-1 {
			push(p.X, p.Y+1)
		}
	}
	return dst
}

// stitch stacks pages top to bottom, left aligned, on a white canvas
func stitch(pages []image.Image) *image.NRGBA {
	width, height := 0, 0
	for _, page := range pages {
		b := page.Bounds()
		if b.Dx() > width {
			width = b.Dx()
		}
		height += b.Dy()
	}

	canvas := imaging.New(width, height, color.White)
	y := 0
	for _, page := range pages {
		b := page.Bounds()
		draw.Draw(canvas, image.Rect(0, y, b.Dx(), y+b.Dy()), page, b.Min, draw.Src)
		y += b.Dy()
	}
	return canvas
}
