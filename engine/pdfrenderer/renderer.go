package pdfrenderer

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// PointsPerInch is the PDF user space unit: page sizes are expressed in 1/72 inch
const PointsPerInch = 72.0

// ErrPageOutOfRange is returned when a page index is outside the document
var ErrPageOutOfRange = errors.New("page index out of range")

// ErrRendererBusy is returned by Open when no rendering worker became free in time
var ErrRendererBusy = errors.New("renderer busy")

// Renderer defines the interface for opening PDF documents held in memory
type Renderer interface {
	// Open parses the PDF bytes; the returned Document must be closed by the caller
	Open(data []byte) (Document, error)

	// Name identifies the backend in logs and summaries
	Name() string

	// Close cleans up any resources used by the renderer
	Close() error
}

// Document is one opened PDF. Pages are addressed by 0-based index in document order.
type Document interface {
	NumPage() int

	// PageSize returns the page size in points
	PageSize(page int) (width, height float64, err error)

	// RenderPage rasterizes one page at the given resolution onto an opaque white background
	RenderPage(page int, dpi float64) (image.Image, error)

	Close() error
}

// NewRenderer creates the renderer backend selected by name ("fitz" or "pdfium").
// workers bounds how many documents the pdfium backend keeps open at once.
func NewRenderer(name string, workers int) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fitz", "mupdf":
		return NewFitzRenderer()
	case "pdfium":
		return NewPDFiumRenderer(workers)
	default:
		return nil, fmt.Errorf("unknown PDF renderer %q (expected fitz or pdfium)", name)
	}
}

// PixelSize returns the raster dimensions a page of the given point size has at dpi
func PixelSize(widthPt, heightPt, dpi float64) (int, int) {
	scale := dpi / PointsPerInch
	return int(widthPt*scale + 0.5), int(heightPt*scale + 0.5)
}
