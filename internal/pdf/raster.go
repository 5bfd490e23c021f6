// Package pdf opens uploaded PDFs and rasterizes their pages.
//
// Two rasterizers are provided. FitzRasterizer renders every page with MuPDF
// and works for any document. ScanRasterizer needs no C toolchain and is
// meant for scanned books, where each page is a single embedded image; it
// extracts that image with pdfcpu and scales it to the page viewport.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
)

// PointsPerInch is the PDF user space unit. A render scale of 1 maps one
// point to one pixel.
const PointsPerInch = 72.0

// DefaultScale balances legibility against output size.
const DefaultScale = 2.0

// MaxPixels bounds the surface allocated for a single page.
const MaxPixels = 60_000_000

// Document is an opened PDF ready to be rasterized page by page.
// Implementations must be safe for concurrent Render calls.
type Document interface {
	PageCount() int
	// Render rasterizes page (1-indexed) at scale times its size in points.
	Render(ctx context.Context, page int, scale float64) (image.Image, error)
	Close() error
}

// Rasterizer opens documents.
type Rasterizer interface {
	Open(data []byte) (Document, error)
}

// NewRasterizer returns the rasterizer registered under name.
func NewRasterizer(name string) (Rasterizer, error) {
	switch name {
	case "", "fitz", "mupdf":
		return FitzRasterizer{}, nil
	case "scan", "pdfcpu":
		return NewScanRasterizer(), nil
	default:
		return nil, fmt.Errorf("pdf: unknown rasterizer %q", name)
	}
}

// OpenError means the document could not be parsed at all.
type OpenError struct {
	Err error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("pdf: cannot open document: %v", e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// RenderError means a single page could not be rasterized.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("pdf: rendering page %d: %v", e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

var (
	ErrPageRange = errors.New("page out of range")
	ErrTooLarge  = errors.New("page surface too large")
	ErrNoImage   = errors.New("page has no embedded image")
)

func checkPage(page, count int) error {
	if page < 1 || page > count {
		return &RenderError{Page: page, Err: fmt.Errorf("%w: %d of %d", ErrPageRange, page, count)}
	}
	return nil
}

func checkViewport(page int, width, height float64, scale float64) error {
	if scale <= 0 {
		return &RenderError{Page: page, Err: fmt.Errorf("invalid scale %v", scale)}
	}
	if px := width * scale * height * scale; px > MaxPixels {
		return &RenderError{Page: page, Err: fmt.Errorf("%w: %.0f pixels", ErrTooLarge, px)}
	}
	return nil
}

// DecodeImage decodes an embedded or uploaded image. The size declared in its
// header is checked against MaxPixels before any pixels are allocated.
func DecodeImage(data []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > MaxPixels {
		return nil, fmt.Errorf("%w: %s image of %dx%d", ErrTooLarge, format, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
