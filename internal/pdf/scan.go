package pdf

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// ScanRasterizer renders a page by scaling its largest embedded image onto a
// white surface the size of the page viewport.
type ScanRasterizer struct {
	Scaler draw.Scaler
}

func NewScanRasterizer() *ScanRasterizer {
	return &ScanRasterizer{Scaler: draw.CatmullRom}
}

func (r *ScanRasterizer) Open(data []byte) (Document, error) {
	ctx, err := readContext(data)
	if err != nil {
		return nil, &OpenError{Err: err}
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, &OpenError{Err: fmt.Errorf("reading page sizes: %w", err)}
	}
	scaler := r.Scaler
	if scaler == nil {
		scaler = draw.CatmullRom
	}
	return &scanDocument{ctx: ctx, dims: dims, scaler: scaler}, nil
}

type scanDocument struct {
	// mu guards ctx, pdfcpu contexts are not safe for concurrent use.
	mu     sync.Mutex
	ctx    *model.Context
	dims   []types.Dim
	scaler draw.Scaler
}

func (d *scanDocument) PageCount() int {
	return len(d.dims)
}

func (d *scanDocument) Render(ctx context.Context, page int, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkPage(page, len(d.dims)); err != nil {
		return nil, err
	}
	dim := d.dims[page-1]
	if err := checkViewport(page, dim.Width, dim.Height, scale); err != nil {
		return nil, err
	}

	src, err := d.pageImage(page)
	if err != nil {
		return nil, &RenderError{Page: page, Err: err}
	}

	w := int(math.Round(dim.Width * scale))
	h := int(math.Round(dim.Height * scale))
	surface := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(surface, surface.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	d.scaler.Scale(surface, surface.Bounds(), src, src.Bounds(), draw.Over, nil)
	return surface, nil
}

// pageImage decodes the largest non-thumbnail image on page.
func (d *scanDocument) pageImage(page int) (image.Image, error) {
	d.mu.Lock()
	images, err := pdfcpu.ExtractPageImages(d.ctx, page, false)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var best *model.Image
	for objNr := range images {
		img := images[objNr]
		if img.Thumb || img.Reader == nil {
			continue
		}
		if best == nil || img.Width*img.Height > best.Width*best.Height ||
			(img.Width*img.Height == best.Width*best.Height && img.ObjNr < best.ObjNr) {
			best = &img
		}
	}
	if best == nil {
		return nil, ErrNoImage
	}

	data, err := io.ReadAll(best.Reader)
	if err != nil {
		return nil, fmt.Errorf("reading %s image %d: %w", best.FileType, best.ObjNr, err)
	}
	decoded, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s image %d: %w", best.FileType, best.ObjNr, err)
	}
	return decoded, nil
}

func (d *scanDocument) Close() error {
	return nil
}
