package pdf

import (
	"bytes"
	"errors"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu would otherwise create a config directory under $HOME.
	api.DisableConfigDir()
}

func readContext(data []byte) (*model.Context, error) {
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
}

// PageSize is a page's size in points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Info describes a document without rasterizing it.
type Info struct {
	PageCount int        `json:"page_count"`
	Title     string     `json:"title,omitempty"`
	Author    string     `json:"author,omitempty"`
	Pages     []PageSize `json:"pages"`
}

// Inspect validates data as a PDF and reads its page count, page sizes and
// document information. Unparseable input yields an *OpenError.
func Inspect(data []byte) (*Info, error) {
	ctx, err := readContext(data)
	if err != nil {
		return nil, &OpenError{Err: err}
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, &OpenError{Err: err}
	}

	info := &Info{
		PageCount: ctx.PageCount,
		Title:     strings.TrimSpace(ctx.XRefTable.Title),
		Author:    strings.TrimSpace(ctx.XRefTable.Author),
		Pages:     make([]PageSize, 0, len(dims)),
	}
	for _, d := range dims {
		info.Pages = append(info.Pages, PageSize{Width: d.Width, Height: d.Height})
	}
	return info, nil
}
