package viewer

import (
	"bytes"
	"html/template"
	"strings"
	"testing"
)

func TestViewer_Navigation(t *testing.T) {
	v := New(3, BookLabels)
	if v.Readout() != "1 / 3" {
		t.Errorf("expected 1 / 3, got %q", v.Readout())
	}

	v.Prev()
	if v.Cursor() != 0 {
		t.Errorf("prev at the first page moved the cursor to %d", v.Cursor())
	}

	v.Next()
	v.Next()
	if v.Cursor() != 2 || v.Readout() != "3 / 3" {
		t.Errorf("expected the last page, got %d (%s)", v.Cursor(), v.Readout())
	}
	v.Next()
	if v.Cursor() != 2 {
		t.Errorf("next at the last page moved the cursor to %d", v.Cursor())
	}
	if v.HasNext() || !v.HasPrev() {
		t.Errorf("unexpected HasNext=%v HasPrev=%v", v.HasNext(), v.HasPrev())
	}
}

func TestViewer_SeekClamps(t *testing.T) {
	tests := []struct {
		total, seek, want int
	}{
		{5, -3, 0},
		{5, 2, 2},
		{5, 99, 4},
		{1, 1, 0},
		{0, 3, 0},
	}
	for _, tt := range tests {
		v := New(tt.total, BookLabels)
		v.Seek(tt.seek)
		if v.Cursor() != tt.want {
			t.Errorf("total %d seek %d: expected %d, got %d", tt.total, tt.seek, tt.want, v.Cursor())
		}
	}
}

func TestViewer_Empty(t *testing.T) {
	v := New(0, StoryLabels)
	v.Next()
	v.Prev()
	if !v.Empty() || v.Cursor() != 0 {
		t.Errorf("unexpected state for empty viewer: cursor %d", v.Cursor())
	}
	if v.Readout() != StoryLabels.Empty {
		t.Errorf("expected %q, got %q", StoryLabels.Empty, v.Readout())
	}
}

func TestLabelsFor(t *testing.T) {
	if LabelsFor("story") != StoryLabels || LabelsFor("book") != BookLabels || LabelsFor("") != BookLabels {
		t.Error("unexpected label sets")
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		w, h, wantW, wantH int
	}{
		{550, 733, 550, 733},
		{1100, 1466, 550, 733},
		{400, 200, 550, 275},
		{100, 1466, 50, 733},
		{0, 100, PageWidth, PageHeight},
	}
	for _, tt := range tests {
		w, h := Fit(tt.w, tt.h)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("Fit(%d, %d) = %d, %d; expected %d, %d", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestRender(t *testing.T) {
	pages := []Page{
		{Src: template.URL("/flipbooks/abc/pages/1"), Width: 100, Height: 100},
		{Src: template.URL("/flipbooks/abc/pages/2"), Width: 100, Height: 100},
	}
	var buf bytes.Buffer
	err := Render(&buf, Document{Title: "My <book>", Pages: pages, Start: 7})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"<title>My &lt;book&gt;</title>",
		`src="/flipbooks/abc/pages/2"`,
		`<span id="readout">2 / 2</span>`,
		"Flipbook 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
	if strings.Count(out, "class=\"leaf hidden\"") != 1 {
		t.Error("expected exactly one hidden leaf")
	}
	if pages[0].Width != 100 {
		t.Error("Render modified the caller's pages")
	}
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, Document{Labels: StoryLabels}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, StoryLabels.Empty) {
		t.Error("expected the empty message")
	}
	if strings.Contains(out, "<script>") {
		t.Error("empty viewer should not carry navigation script")
	}
}
