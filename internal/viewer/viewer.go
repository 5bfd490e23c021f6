// Package viewer holds the paged viewer shared by the web UI and standalone
// exports.
package viewer

import (
	"fmt"
	"math"
)

// PageWidth and PageHeight are the nominal size of one displayed leaf.
const (
	PageWidth  = 550
	PageHeight = 733
)

// Labels are the display strings of a viewer. Books and stories use the same
// viewer with different labels.
type Labels struct {
	Heading string
	Hint    string
	Empty   string
	Prev    string
	Next    string
	// Readout formats the 1-based position and the total.
	Readout string
}

var BookLabels = Labels{
	Heading: "Flipbook",
	Hint:    "Use the arrows or your keyboard to turn pages",
	Empty:   "No pages to display",
	Prev:    "Previous page",
	Next:    "Next page",
	Readout: "%d / %d",
}

var StoryLabels = Labels{
	Heading: "Story",
	Hint:    "Turn the pages to follow the story",
	Empty:   "This story has no pages yet",
	Prev:    "Back",
	Next:    "Forward",
	Readout: "%d / %d",
}

// LabelsFor returns the label set registered under kind, BookLabels if kind
// is unknown.
func LabelsFor(kind string) Labels {
	if kind == "story" {
		return StoryLabels
	}
	return BookLabels
}

// Viewer is a cursor over a finished leaf sequence. The cursor never wraps.
type Viewer struct {
	total  int
	cursor int
	labels Labels
}

func New(total int, labels Labels) *Viewer {
	if total < 0 {
		total = 0
	}
	if labels.Readout == "" {
		labels.Readout = BookLabels.Readout
	}
	return &Viewer{total: total, labels: labels}
}

func (v *Viewer) Total() int  { return v.total }
func (v *Viewer) Cursor() int { return v.cursor }
func (v *Viewer) Empty() bool { return v.total == 0 }

// Seek moves the cursor to i clamped to the sequence.
func (v *Viewer) Seek(i int) {
	v.cursor = v.clamp(i)
}

func (v *Viewer) Next() { v.Seek(v.cursor + 1) }
func (v *Viewer) Prev() { v.Seek(v.cursor - 1) }

func (v *Viewer) HasNext() bool { return v.cursor < v.total-1 }
func (v *Viewer) HasPrev() bool { return v.cursor > 0 }

// Readout is the position shown under the page, or the empty message.
func (v *Viewer) Readout() string {
	if v.Empty() {
		return v.labels.Empty
	}
	return fmt.Sprintf(v.labels.Readout, v.cursor+1, v.total)
}

func (v *Viewer) clamp(i int) int {
	if v.total == 0 || i < 0 {
		return 0
	}
	if i > v.total-1 {
		return v.total - 1
	}
	return i
}

// Fit scales a w x h leaf to fit inside the nominal page, keeping its aspect
// ratio. Leaves with no area get the full page.
func Fit(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return PageWidth, PageHeight
	}
	scale := math.Min(float64(PageWidth)/float64(w), float64(PageHeight)/float64(h))
	return max(1, int(math.Round(float64(w)*scale))), max(1, int(math.Round(float64(h)*scale)))
}
