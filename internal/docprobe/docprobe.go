// Package docprobe inspects PDFs before they are ingested: page count, how
// much extractable text there is and how many pages carry images.
package docprobe

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Thresholds decide when a PDF counts as image-rich or likely to need OCR.
type Thresholds struct {
	ImagePageRatio  float64
	MinCharsPerPage float64
	LowTextChars    int
}

// DefaultThresholds match the ingestion pipeline's OCR defaults.
var DefaultThresholds = Thresholds{
	ImagePageRatio:  0.6,
	MinCharsPerPage: 300,
	LowTextChars:    500,
}

// Report is the text/image profile of one PDF.
type Report struct {
	Pages           int
	PagesWithText   int
	PagesWithImages int
	Images          int
	TextChars       int
}

func (r Report) ImagePageRatio() float64 {
	if r.Pages == 0 {
		return 0
	}
	return float64(r.PagesWithImages) / float64(r.Pages)
}

func (r Report) CharsPerPage() float64 {
	if r.Pages == 0 {
		return 0
	}
	return float64(r.TextChars) / float64(r.Pages)
}

// ImageRichAt reports whether image pages dominate under t.
func (r Report) ImageRichAt(t Thresholds) bool {
	return r.Images > 0 && r.ImagePageRatio() >= t.ImagePageRatio
}

// ImageRich is ImageRichAt(DefaultThresholds).
func (r Report) ImageRich() bool { return r.ImageRichAt(DefaultThresholds) }

// NeedsOCR reports whether the PDF looks scanned: image-rich, or thin on
// text while a quarter or more of its pages carry images.
func (r Report) NeedsOCR(t Thresholds) bool {
	if r.Images == 0 {
		return false
	}
	lowText := r.CharsPerPage() < t.MinCharsPerPage || r.TextChars < t.LowTextChars
	return r.ImageRichAt(t) || (lowText && r.ImagePageRatio() >= 0.25)
}

// Profile is the short label shown next to a knowledge source.
func (r Report) Profile() string {
	switch {
	case r.ImageRich():
		return "IMAGE-RICH"
	case r.TextChars >= 20000:
		return "TEXT-RICH"
	default:
		return "LOW TEXT"
	}
}

// ProbeFile profiles the PDF at path.
func ProbeFile(path string) (Report, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return probe(r)
}

// Probe profiles a PDF held in ra.
func Probe(ra io.ReaderAt, size int64) (Report, error) {
	r, err := pdf.NewReader(ra, size)
	if err != nil {
		return Report{}, fmt.Errorf("open pdf: %w", err)
	}
	return probe(r)
}

func probe(r *pdf.Reader) (rep Report, err error) {
	// The parser panics on some malformed content streams.
	defer func() {
		if p := recover(); p != nil {
			rep, err = Report{}, fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	rep.Pages = r.NumPage()
	for i := 1; i <= rep.Pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, terr := page.GetPlainText(nil)
		if terr == nil {
			if n := len([]rune(strings.TrimSpace(text))); n > 0 {
				rep.PagesWithText++
				rep.TextChars += n
			}
		}

		if n := countImages(page); n > 0 {
			rep.PagesWithImages++
			rep.Images += n
		}
	}
	return rep, nil
}

func countImages(page pdf.Page) int {
	xobjects := page.Resources().Key("XObject")
	n := 0
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			n++
		}
	}
	return n
}
