package docprobe

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// buildPDF assembles a minimal PDF: one text page per entry of texts, and
// imagePages extra pages that carry only an image XObject.
func buildPDF(texts []string, imagePages int) []byte {
	var objs []string
	// 1: catalog, 2: pages, 3: font, 4: image. Pages start at 5.
	total := len(texts) + imagePages
	var kids []string
	for i := range total {
		kids = append(kids, fmt.Sprintf("%d 0 R", 5+2*i))
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", joinSpace(kids), total),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		"<< /Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8 /Length 1 >>\nstream\n\x00\nendstream",
	)
	for i := range total {
		pageObj := 5 + 2*i
		var content, res string
		if i < len(texts) {
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", texts[i])
			res = "<< /Font << /F1 3 0 R >> >>"
		} else {
			content = "q 100 0 0 100 72 600 cm /Im1 Do Q"
			res = "<< /XObject << /Im1 4 0 R >> >>"
		}
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources %s /Contents %d 0 R >>", res, pageObj+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func joinSpace(s []string) string {
	var b bytes.Buffer
	for i, v := range s {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(v)
	}
	return b.String()
}

func TestProbe_CountsPagesTextAndImages(t *testing.T) {
	data := buildPDF([]string{"Short rib braise", "Chimichurri"}, 1)

	rep, err := Probe(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if rep.Pages != 3 {
		t.Errorf("Pages = %d, want 3", rep.Pages)
	}
	if rep.PagesWithImages != 1 || rep.Images != 1 {
		t.Errorf("images = %d on %d pages, want 1 on 1", rep.Images, rep.PagesWithImages)
	}
	if rep.PagesWithText == 0 || rep.TextChars == 0 {
		t.Errorf("no text found: %+v", rep)
	}
}

func TestProbeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(path, buildPDF(nil, 2), 0o644); err != nil {
		t.Fatal(err)
	}

	rep, err := ProbeFile(path)
	if err != nil {
		t.Fatalf("ProbeFile: %v", err)
	}
	if rep.Pages != 2 || rep.Images != 2 {
		t.Errorf("report = %+v", rep)
	}
	if !rep.ImageRich() || rep.Profile() != "IMAGE-RICH" {
		t.Errorf("ImageRich = %v, Profile = %q", rep.ImageRich(), rep.Profile())
	}
	if !rep.NeedsOCR(DefaultThresholds) {
		t.Error("scanned pdf should need OCR")
	}
}

func TestProbe_NotAPDF(t *testing.T) {
	data := []byte("just a shopping list")
	if _, err := Probe(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Error("expected error")
	}
}

func TestReport_Classification(t *testing.T) {
	tests := []struct {
		name    string
		rep     Report
		rich    bool
		ocr     bool
		profile string
	}{
		{"empty", Report{}, false, false, "LOW TEXT"},
		{"text heavy", Report{Pages: 10, PagesWithText: 10, TextChars: 25000}, false, false, "TEXT-RICH"},
		{"mostly scans", Report{Pages: 10, PagesWithImages: 7, Images: 9, TextChars: 100}, true, true, "IMAGE-RICH"},
		{"mixed thin text", Report{Pages: 4, PagesWithImages: 1, Images: 1, TextChars: 400}, false, true, "LOW TEXT"},
		{"mixed dense text", Report{Pages: 4, PagesWithImages: 1, Images: 1, TextChars: 8000}, false, false, "LOW TEXT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rep.ImageRich(); got != tt.rich {
				t.Errorf("ImageRich = %v, want %v", got, tt.rich)
			}
			if got := tt.rep.NeedsOCR(DefaultThresholds); got != tt.ocr {
				t.Errorf("NeedsOCR = %v, want %v", got, tt.ocr)
			}
			if got := tt.rep.Profile(); got != tt.profile {
				t.Errorf("Profile = %q, want %q", got, tt.profile)
			}
		})
	}
}
