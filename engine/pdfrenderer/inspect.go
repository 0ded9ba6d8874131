package pdfrenderer

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// DocumentInfo is the descriptive metadata of a PDF, echoed back in conversion summaries
type DocumentInfo struct {
	PageCount int    `json:"pageCount"`
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Creator   string `json:"creator,omitempty"`
	Producer  string `json:"producer,omitempty"`
}

// Inspect reads the page count and the Info dictionary without rasterizing anything.
// The parser is stricter than the renderers, so callers treat failures as "no metadata".
func Inspect(data []byte) (info *DocumentInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			info = nil
			err = fmt.Errorf("unable to parse PDF structure: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("unable to parse PDF structure: %w", err)
	}

	meta := reader.Trailer().Key("Info")
	return &DocumentInfo{
		PageCount: reader.NumPage(),
		Title:     meta.Key("Title").Text(),
		Author:    meta.Key("Author").Text(),
		Subject:   meta.Key("Subject").Text(),
		Creator:   meta.Key("Creator").Text(),
		Producer:  meta.Key("Producer").Text(),
	}, nil
}
