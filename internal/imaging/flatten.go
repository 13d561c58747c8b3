// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package imaging prepares page images: compositing onto an opaque white
// background for hosts that render transparency poorly, and the contrast,
// upscale and sharpen chain applied before OCR.
package imaging

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	dimg "github.com/disintegration/imaging"
)

// OpaqueDir is the subdirectory beside each original that holds its opaque
// copy, so listings of the original's directory never see the copies.
const OpaqueDir = "opaque"

// Flatten returns img composited over opaque white.
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	return dimg.Overlay(dimg.New(b.Dx(), b.Dy(), color.White), img, image.Point{}, 1.0)
}

// FlattenFile decodes the image at src, flattens it, and writes it to dst as
// a PNG through a temporary file.
func FlattenFile(src, dst string) error {
	img, err := dimg.Open(src)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", src, err)
	}
	return writePNG(dst, Flatten(img))
}

// Cached returns the path of an opaque copy of src stored at
// <dir of src>/opaque/<name>, creating or refreshing it when missing or older
// than src.
func Cached(src string) (string, error) {
	dst := filepath.Join(filepath.Dir(src), OpaqueDir, filepath.Base(src))
	srcInfo, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if dstInfo, err := os.Stat(dst); err == nil && !dstInfo.ModTime().Before(srcInfo.ModTime()) {
		return dst, nil
	}
	if err := FlattenFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func writePNG(dst string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", dst, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".imaging-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	encErr := dimg.Encode(tmp, img, dimg.PNG)
	closeErr := tmp.Close()
	if encErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("encoding %s: %w", dst, encErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
