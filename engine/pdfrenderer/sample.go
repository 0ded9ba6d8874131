package pdfrenderer

import (
	"bytes"
	"fmt"
)

// PageSpec describes one page of a generated sample document, in points
type PageSpec struct {
	Width  float64
	Height float64
}

// A4 and Letter page sizes in points
var (
	A4     = PageSpec{Width: 595, Height: 842}
	Letter = PageSpec{Width: 612, Height: 792}
)

// SamplePDF builds a small, valid PDF with one page per PageSpec. Every page has a white
// margin around a filled black square so backgrounds and ink can be told apart.
// It backs the startup self check and the tests.
func SamplePDF(title string, pages ...PageSpec) []byte {
	if len(pages) == 0 {
		pages = []PageSpec{A4}
	}

	var buf bytes.Buffer
	offsets := []int{}
	writeObject := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	// 1: catalog, 2: page tree, then a page/content pair per page, then the info dictionary
	writeObject("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	writeObject(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)))

	for i, page := range pages {
		side := page.Width / 2
		if page.Height/2 < side {
			side = page.Height / 2
		}
		content := fmt.Sprintf("0 0 0 rg %.2f %.2f %.2f %.2f re f", (page.Width-side)/2, (page.Height-side)/2, side, side)
		writeObject(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.2f %.2f] /Contents %d 0 R /Resources << >> >>",
			page.Width, page.Height, 4+2*i))
		writeObject(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	writeObject(fmt.Sprintf("<< /Title (%s) /Producer (pdf2image) >>", title))
	infoRef := len(offsets)

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, infoRef, xref)

	return buf.Bytes()
}
