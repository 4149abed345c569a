package processor

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stripes(w, h int, paper, ink color.Color) *image.NRGBA {
	img := imaging.New(w, h, paper)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x += 20 {
			img.Set(x, y, ink)
		}
	}
	return img
}

func stripedScan(w, h int) *image.NRGBA {
	return stripes(w, h, color.White, color.Black)
}

func TestAssessScan(t *testing.T) {
	assert.Equal(t, PoorScan, AssessScan(imaging.New(100, 100, color.Black)))
	assert.Equal(t, PoorScan, AssessScan(imaging.New(100, 100, color.Gray{Y: 128})))
	assert.Equal(t, FairScan, AssessScan(stripes(100, 100, color.Gray{Y: 158}, color.Gray{Y: 98})))
	assert.Equal(t, GoodScan, AssessScan(stripedScan(100, 100)))
}

func TestPreprocessResizesLargeScans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, imaging.Save(stripedScan(400, 200), path))

	p := NewImagePreprocessor(true, 100)
	data, mime, err := p.Preprocess(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	decoded, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, decoded.Bounds().Dx())
	assert.Equal(t, 50, decoded.Bounds().Dy())
}

func TestPreprocessPassesThroughPDFAndDisabled(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "invoice.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o600))

	data, mime, err := NewImagePreprocessor(true, 0).Preprocess(pdf)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mime)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	jpg := filepath.Join(dir, "scan.jpg")
	require.NoError(t, imaging.Save(stripedScan(50, 50), jpg))
	raw, err := os.ReadFile(jpg)
	require.NoError(t, err)

	data, mime, err = NewImagePreprocessor(false, 0).Preprocess(jpg)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, raw, data)
}

func TestPreprocessMissingFile(t *testing.T) {
	_, _, err := NewImagePreprocessor(true, 0).Preprocess(filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}
