package viewer

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/viewer.html.tmpl
var templates embed.FS

var page = template.Must(template.ParseFS(templates, "templates/viewer.html.tmpl"))

// Page is one leaf as the viewer displays it. Src is either a URL served by
// the API or an inline data URI.
type Page struct {
	Src    template.URL
	Width  int
	Height int
	Alt    string
}

// Document is everything needed to draw the viewer.
type Document struct {
	Title  string
	Labels Labels
	Pages  []Page
	// Start is the 0-based page shown first. It is clamped.
	Start int
}

type view struct {
	Document
	Readout string
	HasPrev bool
	HasNext bool
}

// Render writes the viewer as a complete HTML page. The page only needs the
// image sources it is given; script and styles are inline.
func Render(w io.Writer, doc Document) error {
	if doc.Labels == (Labels{}) {
		doc.Labels = BookLabels
	}
	if doc.Title == "" {
		doc.Title = doc.Labels.Heading
	}
	v := New(len(doc.Pages), doc.Labels)
	v.Seek(doc.Start)
	doc.Start = v.Cursor()

	doc.Pages = append([]Page(nil), doc.Pages...)
	for i := range doc.Pages {
		p := &doc.Pages[i]
		p.Width, p.Height = Fit(p.Width, p.Height)
		if p.Alt == "" {
			p.Alt = fmt.Sprintf("%s %d", doc.Labels.Heading, i+1)
		}
	}

	return page.Execute(w, view{
		Document: doc,
		Readout:  v.Readout(),
		HasPrev:  v.HasPrev(),
		HasNext:  v.HasNext(),
	})
}
