// Package export writes finished leaf sequences as standalone artifacts: a
// self-contained HTML viewer or a PDF with one page per leaf.
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/jung-kurt/gofpdf"

	"flipbook-app/internal/leaf"
	"flipbook-app/internal/viewer"
)

// PageWidth and PageHeight are the size in points of every exported PDF page.
const (
	PageWidth  = float64(viewer.PageWidth)
	PageHeight = float64(viewer.PageHeight)
)

// HTML writes a single HTML file embedding every leaf as a data URI. The file
// references nothing outside itself.
func HTML(w io.Writer, title string, labels viewer.Labels, leaves []leaf.Leaf) error {
	pages := make([]viewer.Page, len(leaves))
	for i, l := range leaves {
		pages[i] = viewer.Page{
			// Data URIs are produced here from encoded bytes, never from input.
			Src:    template.URL(l.DataURI()),
			Width:  l.Width,
			Height: l.Height,
		}
	}
	if err := viewer.Render(w, viewer.Document{Title: title, Labels: labels, Pages: pages}); err != nil {
		return fmt.Errorf("export: rendering html: %w", err)
	}
	return nil
}

// PDF writes a document with one fixed-size page per leaf, in order. Each
// image is stretched to cover its page exactly. An empty sequence produces a
// document with a single blank page.
func PDF(w io.Writer, title string, leaves []leaf.Leaf) error {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: PageWidth, Ht: PageHeight},
	})
	pdf.SetTitle(title, true)
	pdf.SetCreator("flipbook-app", true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	for i, l := range leaves {
		name := fmt.Sprintf("leaf-%d", i)
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(l.Data))
		pdf.AddPage()
		pdf.ImageOptions(name, 0, 0, PageWidth, PageHeight, false, opts, 0, "")
		if pdf.Err() {
			return fmt.Errorf("export: leaf %d: %w", i+1, pdf.Error())
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("export: writing pdf: %w", err)
	}
	return nil
}
