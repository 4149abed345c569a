// imageprocessor.go - Invoice scan cleanup before OCR

package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ScanQuality buckets a scan by brightness and contrast
type ScanQuality int

const (
	PoorScan ScanQuality = iota
	FairScan
	GoodScan
)

func (q ScanQuality) String() string {
	switch q {
	case PoorScan:
		return "poor"
	case FairScan:
		return "fair"
	default:
		return "good"
	}
}

// ImagePreprocessor resizes and enhances invoice scans.
// Enabled=false passes files through untouched.
type ImagePreprocessor struct {
	Enabled      bool
	MaxDimension int
}

// NewImagePreprocessor returns a preprocessor; maxDimension <= 0 defaults to 2000
func NewImagePreprocessor(enabled bool, maxDimension int) *ImagePreprocessor {
	if maxDimension <= 0 {
		maxDimension = 2000
	}
	return &ImagePreprocessor{Enabled: enabled, MaxDimension: maxDimension}
}

// Preprocess returns the bytes to send to the OCR service and their mime type
func (p *ImagePreprocessor) Preprocess(imagePath string) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(imagePath))
	if ext == ".pdf" || !p.Enabled {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read scan: %w", err)
		}
		return data, MimeTypeFor(imagePath), nil
	}

	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}

	img = p.Enhance(img)

	var buf bytes.Buffer
	mimeType := MimeTypeFor(imagePath)
	if mimeType == "image/png" {
		err = png.Encode(&buf, img)
	} else {
		mimeType = "image/jpeg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode processed image: %w", err)
	}
	return buf.Bytes(), mimeType, nil
}

// Enhance resizes img to MaxDimension and applies enhancement matched to its quality
func (p *ImagePreprocessor) Enhance(img image.Image) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() > p.MaxDimension || bounds.Dy() > p.MaxDimension {
		if bounds.Dx() > bounds.Dy() {
			img = imaging.Resize(img, p.MaxDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, p.MaxDimension, imaging.Lanczos)
		}
	}

	var out *image.NRGBA
	switch AssessScan(img) {
	case PoorScan:
		out = imaging.Sharpen(img, 4.0)
		out = imaging.AdjustContrast(out, 60)
		out = imaging.AdjustBrightness(out, 25)
		out = imaging.Grayscale(out)
		out = imaging.AdjustGamma(out, 1.3)
		// blur + sharpen removes speckle left by thermal printers
		out = imaging.Blur(out, 0.5)
		out = imaging.Sharpen(out, 2.5)
	case FairScan:
		out = imaging.Sharpen(img, 3.0)
		out = imaging.AdjustContrast(out, 45)
		out = imaging.Grayscale(out)
		out = imaging.AdjustGamma(out, 1.15)
	default:
		out = imaging.Sharpen(img, 2.0)
		out = imaging.Grayscale(out)
		out = imaging.AdjustContrast(out, 20)
	}
	return out
}

// AssessScan samples every 10th pixel; ideal scans have mid brightness and wide contrast
func AssessScan(img image.Image) ScanQuality {
	bounds := img.Bounds()
	var total float64
	minB, maxB := 255.0, 0.0
	count := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y += 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			brightness := (float64(r>>8) + float64(g>>8) + float64(b>>8)) / 3.0
			total += brightness
			minB = math.Min(minB, brightness)
			maxB = math.Max(maxB, brightness)
			count++
		}
	}
	if count == 0 {
		return PoorScan
	}

	brightnessScore := 100.0 - math.Abs(total/float64(count)-128.0)/1.28
	contrastScore := math.Min((maxB-minB)/2.0, 100.0)
	score := brightnessScore*0.4 + contrastScore*0.6

	switch {
	case score < 50:
		return PoorScan
	case score < 75:
		return FairScan
	default:
		return GoodScan
	}
}

// MimeTypeFor guesses the mime type from the file extension
func MimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
