// Package pdftest builds small horizontally-paged books for tests.
package pdftest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/jung-kurt/gofpdf"
)

// PageWidth and PageHeight are the size of every generated page in points.
const (
	PageWidth  = 200.0
	PageHeight = 100.0
)

// Left and Right are the colours painted on each half of a spread.
var (
	Left  = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	Right = color.RGBA{R: 30, G: 30, B: 220, A: 255}
)

// Spread returns a w x h image whose left half is Left and right half Right.
func Spread(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.SetRGBA(x, y, Left)
			} else {
				img.SetRGBA(x, y, Right)
			}
		}
	}
	return img
}

// Book returns a PDF with the given number of spread pages. Pages listed in
// blank carry no image, which the scan rasterizer cannot render.
func Book(title string, pages int, blank ...int) ([]byte, error) {
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, Spread(400, 200), &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	return BookOf(title, jpg.Bytes(), pages, blank...)
}

// BookOf is Book with jpg as the image drawn on every page.
func BookOf(title string, jpg []byte, pages int, blank ...int) ([]byte, error) {
	skip := make(map[int]bool, len(blank))
	for _, p := range blank {
		skip[p] = true
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: PageWidth, Ht: PageHeight},
	})
	pdf.SetTitle(title, false)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	opts := gofpdf.ImageOptions{ImageType: "JPG"}
	pdf.RegisterImageOptionsReader("spread", opts, bytes.NewReader(jpg))

	for i := 1; i <= pages; i++ {
		pdf.AddPage()
		if skip[i] {
			continue
		}
		pdf.ImageOptions("spread", 0, 0, PageWidth, PageHeight, false, opts, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("pdftest: writing book: %w", err)
	}
	return out.Bytes(), nil
}

// HugeJPEG returns a small baseline JPEG whose frame header declares w x h.
// Decoders that trust the header would allocate the declared size.
func HugeJPEG(w, h int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Spread(16, 8), nil); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	// Walk the marker segments after SOI up to the SOF0 frame header:
	// FF C0, length, precision, height, width.
	for i := 2; i+9 < len(data); {
		if data[i] != 0xFF {
			return nil, errors.New("pdftest: malformed jpeg")
		}
		marker := data[i+1]
		if marker == 0xC0 {
			binary.BigEndian.PutUint16(data[i+5:], uint16(h))
			binary.BigEndian.PutUint16(data[i+7:], uint16(w))
			return data, nil
		}
		i += 2 + int(binary.BigEndian.Uint16(data[i+2:]))
	}
	return nil, errors.New("pdftest: no SOF0 segment")
}

// HugePNG returns a small PNG whose IHDR chunk declares w x h.
func HugePNG(w, h int) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc at 29
	binary.BigEndian.PutUint32(data[16:], uint32(w))
	binary.BigEndian.PutUint32(data[20:], uint32(h))
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data, nil
}
