// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	dimg "github.com/disintegration/imaging"
)

// Preprocessing constants for OCR input.
const (
	// ContrastCutoff is the percentage of darkest and lightest pixels, per
	// channel, ignored when stretching contrast.
	ContrastCutoff = 2.0

	// UpscaleFactor is applied to both dimensions, truncated to an integer.
	UpscaleFactor = 1.5
)

// sharpenKernel is the classic 3x3 sharpen filter; with Normalize it is
// divided by its sum (16).
var sharpenKernel = [9]float64{
	-2, -2, -2,
	-2, 32, -2,
	-2, -2, -2,
}

// Preprocess flattens img, stretches its contrast, upscales it with a
// Lanczos filter and sharpens it.
func Preprocess(img image.Image) *image.NRGBA {
	out := AutoContrast(Flatten(img), ContrastCutoff)
	b := out.Bounds()
	w, h := int(float64(b.Dx())*UpscaleFactor), int(float64(b.Dy())*UpscaleFactor)
	if w > 0 && h > 0 {
		out = dimg.Resize(out, w, h, dimg.Lanczos)
	}
	return dimg.Convolve3x3(out, sharpenKernel, &dimg.ConvolveOptions{Normalize: true})
}

// PreprocessFile runs Preprocess on the image at src and writes a PNG to dst.
func PreprocessFile(src, dst string) error {
	img, err := dimg.Open(src)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", src, err)
	}
	return writePNG(dst, Preprocess(img))
}

// AutoContrast remaps each color channel so that, after discarding cutoff
// percent of pixels at each end of its histogram, the darkest remaining
// value becomes 0 and the lightest 255. A channel with no spread is left
// unchanged. Alpha is preserved.
func AutoContrast(img image.Image, cutoff float64) *image.NRGBA {
	src := dimg.Clone(img)
	var hist [3][256]int
	for i := 0; i < len(src.Pix); i += 4 {
		hist[0][src.Pix[i]]++
		hist[1][src.Pix[i+1]]++
		hist[2][src.Pix[i+2]]++
	}

	var lut [3][256]uint8
	for c := range hist {
		lut[c] = contrastTable(hist[c], cutoff)
	}
	return dimg.AdjustFunc(src, func(px color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[0][px.R], G: lut[1][px.G], B: lut[2][px.B], A: px.A}
	})
}

// contrastTable builds the lookup table for one channel histogram.
func contrastTable(hist [256]int, cutoff float64) [256]uint8 {
	var lut [256]uint8
	for i := range lut {
		lut[i] = uint8(i)
	}

	total := 0
	for _, n := range hist {
		total += n
	}
	cut := int(float64(total) * cutoff / 100)

	lo, remaining := 0, cut
	for ; lo < 256; lo++ {
		if hist[lo] > remaining {
			break
		}
		remaining -= hist[lo]
	}
	hi, remaining := 255, cut
	for ; hi >= 0; hi-- {
		if hist[hi] > remaining {
			break
		}
		remaining -= hist[hi]
	}
	if hi <= lo {
		return lut
	}

	scale := 255.0 / float64(hi-lo)
	offset := -float64(lo) * scale
	for i := range lut {
		v := int(math.Round(float64(i)*scale + offset))
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		lut[i] = uint8(v)
	}
	return lut
}
