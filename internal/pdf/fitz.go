package pdf

import (
	"context"
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzRasterizer renders pages with MuPDF.
type FitzRasterizer struct{}

func (FitzRasterizer) Open(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, &OpenError{Err: err}
	}
	return &fitzDocument{doc: doc}, nil
}

// fitzDocument relies on go-fitz serializing calls on the document.
type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) PageCount() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) Render(ctx context.Context, page int, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkPage(page, d.doc.NumPage()); err != nil {
		return nil, err
	}
	bounds, err := d.doc.Bound(page - 1)
	if err != nil {
		return nil, &RenderError{Page: page, Err: err}
	}
	if err := checkViewport(page, float64(bounds.Dx()), float64(bounds.Dy()), scale); err != nil {
		return nil, err
	}
	img, err := d.doc.ImageDPI(page-1, PointsPerInch*scale)
	if err != nil {
		return nil, &RenderError{Page: page, Err: err}
	}
	return img, nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
