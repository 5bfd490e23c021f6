package leaf

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Halves returns the left and right column ranges of r. The left half is
// floor(width/2) wide; an odd extra column goes to the right half.
func Halves(r image.Rectangle) (left, right image.Rectangle) {
	half := r.Dx() / 2
	mid := r.Min.X + half
	left = image.Rect(r.Min.X, r.Min.Y, mid, r.Max.Y)
	right = image.Rect(mid, r.Min.Y, r.Max.X, r.Max.Y)
	return left, right
}

// Split copies the two halves of surface into independent NRGBA images
// anchored at the origin. The surface can be released afterwards.
func Split(surface image.Image) (left, right *image.NRGBA) {
	l, r := Halves(surface.Bounds())
	return crop(surface, l), crop(surface, r)
}

func crop(src image.Image, r image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	if r.Empty() {
		return dst
	}
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}

// EncodeFunc turns one half into leaf bytes.
type EncodeFunc func(image.Image) ([]byte, error)

// Splitter splits surfaces and encodes each half independently.
type Splitter struct {
	Encode EncodeFunc
}

// NewSplitter returns a Splitter using the PNG encoder.
func NewSplitter() *Splitter {
	return &Splitter{Encode: Encode}
}

// Result is the outcome of encoding one side of a page. Err is set when that
// side could not be encoded; the other side is unaffected.
type Result struct {
	Leaf Leaf
	Err  error
}

// SplitPage cuts the surface of page and encodes both halves, left first.
func (s *Splitter) SplitPage(page int, surface image.Image) [2]Result {
	encode := s.Encode
	if encode == nil {
		encode = Encode
	}
	halves := [2]*image.NRGBA{}
	halves[Left], halves[Right] = Split(surface)

	var out [2]Result
	for _, side := range []Side{Left, Right} {
		img := halves[side]
		data, err := encode(img)
		if err != nil {
			out[side].Err = fmt.Errorf("encoding %s leaf of page %d: %w", side, page, err)
			continue
		}
		out[side].Leaf = Leaf{
			Page:   page,
			Side:   side,
			Width:  img.Rect.Dx(),
			Height: img.Rect.Dy(),
			Data:   data,
		}
	}
	return out
}

// Split is SplitPage for callers that want both leaves or an error.
func (s *Splitter) Split(surface image.Image) (left, right Leaf, err error) {
	res := s.SplitPage(0, surface)
	if err := errors.Join(res[Left].Err, res[Right].Err); err != nil {
		return Leaf{}, Leaf{}, err
	}
	return res[Left].Leaf, res[Right].Leaf, nil
}
