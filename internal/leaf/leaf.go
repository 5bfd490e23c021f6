// Package leaf cuts rendered book spreads into left and right leaves and
// encodes each leaf as a PNG.
//
// Encoding is deterministic: the same pixels always produce the same bytes,
// so leaves can be compared, deduplicated and content addressed by hash.
package leaf

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
)

// MIMEType is the media type of every encoded leaf.
const MIMEType = "image/png"

const dataURIPrefix = "data:" + MIMEType + ";base64,"

// Side says which half of the spread a leaf came from.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Leaf is one encoded half of a rendered page.
type Leaf struct {
	Page   int    `json:"page"`
	Side   Side   `json:"side"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"-"`
}

// DataURI returns the leaf as an embeddable data URI.
func (l Leaf) DataURI() string {
	return dataURIPrefix + base64.StdEncoding.EncodeToString(l.Data)
}

// ErrNotDataURI is returned by ParseDataURI for anything that is not a base64
// PNG data URI.
var ErrNotDataURI = errors.New("leaf: not a base64 png data uri")

// IsDataURI reports whether s looks like an inline leaf.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, dataURIPrefix)
}

// ParseDataURI decodes a data URI produced by Leaf.DataURI.
func ParseDataURI(uri string) ([]byte, error) {
	if !IsDataURI(uri) {
		return nil, ErrNotDataURI
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, dataURIPrefix))
	if err != nil {
		return nil, fmt.Errorf("leaf: decoding data uri: %w", err)
	}
	return data, nil
}

var pngEncoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// emptyPNG stands in for leaves with no pixels: a 1x1 fully transparent image.
var emptyPNG = func() []byte {
	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

// Encode normalizes img to NRGBA and encodes it as PNG. Images with no area
// encode to a minimal transparent placeholder instead of failing.
func Encode(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		out := make([]byte, len(emptyPNG))
		copy(out, emptyPNG)
		return out, nil
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, nrgba); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
