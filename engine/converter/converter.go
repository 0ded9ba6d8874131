package converter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/drummonds/pdf2image/engine/pdfrenderer"
)

// Source is a resolved PDF ready for conversion
type Source struct {
	Filename string
	Data     []byte
}

// PageImage is one encoded output image. When pages are stitched (Combined) there is a single
// PageImage with PageIndex 0 and PageCount set to the number of pages it contains.
type PageImage struct {
	Filename       string  `json:"filename"`
	PageIndex      int     `json:"pageIndex"`
	Page           int     `json:"page"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	SizeBytes      int     `json:"sizeBytes"`
	MimeType       string  `json:"mimeType"`
	DPI            int     `json:"dpi"`
	SourceWidthPt  float64 `json:"sourceWidthPt,omitempty"`
	SourceHeightPt float64 `json:"sourceHeightPt,omitempty"`
	Combined       bool    `json:"combined,omitempty"`
	PageCount      int     `json:"pageCount,omitempty"`
	Data           []byte  `json:"-"`
}

// PageFailure records a page that was skipped
type PageFailure struct {
	PageIndex int    `json:"pageIndex"`
	Page      int    `json:"page"`
	Reason    string `json:"reason"`
}

// Summary describes what a conversion produced
type Summary struct {
	TotalPages    int           `json:"totalPages"`
	ImagesCreated int           `json:"imagesCreated"`
	FailedPages   int           `json:"failedPages"`
	TotalBytes    int64         `json:"totalBytes"`
	Settings      Settings      `json:"settings"`
	Renderer      string        `json:"renderer"`
	Duration      time.Duration `json:"-"`
	DurationMS    int64         `json:"durationMs"`
}

// ConversionResult is the outcome for one PDF. Images are in page order.
type ConversionResult struct {
	Filename string                    `json:"filename"`
	Document *pdfrenderer.DocumentInfo `json:"document,omitempty"`
	Images   []PageImage               `json:"images"`
	Failures []PageFailure             `json:"failures,omitempty"`
	Summary  Summary                   `json:"summary"`
}

// Converter rasterizes PDFs page by page. It keeps no state between calls and is safe for
// concurrent use as long as its Renderer is.
type Converter struct {
	renderer      pdfrenderer.Renderer
	maxPagePixels int64
	logger        *slog.Logger
}

// New creates a converter. maxPagePixels <= 0 disables the raster size guard.
func New(renderer pdfrenderer.Renderer, maxPagePixels int64, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{renderer: renderer, maxPagePixels: maxPagePixels, logger: logger}
}

// Renderer is the backend used for rasterizing
func (c *Converter) Renderer() pdfrenderer.Renderer {
	return c.renderer
}

// RendererName identifies the backend in summaries
func (c *Converter) RendererName() string {
	return c.renderer.Name()
}

// Convert renders every page of src with opts. Configuration problems are reported before
// the document is touched; pages that fail are skipped and listed in Failures.
func (c *Converter) Convert(ctx context.Context, src Source, opts Options) (*ConversionResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	doc, err := c.renderer.Open(src.Data)
	if errors.Is(err, pdfrenderer.ErrRendererBusy) {
		return nil, fmt.Errorf("unable to open %s: %w", src.Filename, err)
	}
	if err != nil {
		return nil, &CorruptDocumentError{Filename: src.Filename, Err: err}
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount <= 0 {
		return nil, &CorruptDocumentError{Filename: src.Filename, Err: fmt.Errorf("document has no pages")}
	}

	result := &ConversionResult{
		Filename: src.Filename,
		Images:   []PageImage{},
	}
	if info, err := pdfrenderer.Inspect(src.Data); err != nil {
		c.logger.Debug("Unable to read document metadata", "filename", src.Filename, "error", err)
	} else {
		result.Document = info
	}

	c.logger.Debug("Converting document", "filename", src.Filename, "pages", pageCount, "format", opts.Format, "dpi", opts.DPI, "split", opts.SplitPages)

	var stitched []image.Image
	var stitchedWidth, stitchedHeight int64
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, widthPt, heightPt, err := c.renderPage(doc, i, opts.DPI)
		if err != nil {
			c.recordFailure(result, src.Filename, i, err)
			continue
		}

		if !opts.SplitPages {
			// the canvas is as wide as the widest page and as tall as all pages together
			b := img.Bounds()
			width := max(stitchedWidth, int64(b.Dx()))
			height := stitchedHeight + int64(b.Dy())
			if c.maxPagePixels > 0 && width*height > c.maxPagePixels {
				c.recordFailure(result, src.Filename, i, &PageConversionError{PageIndex: i, Err: fmt.Errorf("combined image: %w", ErrPixelLimit)})
				continue
			}
			stitchedWidth, stitchedHeight = width, height
			stitched = append(stitched, img)
			continue
		}

		page, err := c.encodePage(img, opts, i)
		if err != nil {
			c.recordFailure(result, src.Filename, i, err)
			continue
		}
		page.Filename = pageFilename(src.Filename, i, opts.Format)
		page.SourceWidthPt, page.SourceHeightPt = widthPt, heightPt
		result.Images = append(result.Images, *page)
	}

	if !opts.SplitPages && len(stitched) > 0 {
		page, err := c.encodePage(stitch(stitched), opts, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to encode combined image for %s: %w", src.Filename, err)
		}
		page.Filename = combinedFilename(src.Filename, opts.Format)
		page.Combined = true
		page.PageCount = len(stitched)
		result.Images = append(result.Images, *page)
	}

	result.Summary = Summary{
		TotalPages:    pageCount,
		ImagesCreated: len(result.Images),
		FailedPages:   len(result.Failures),
		Settings:      opts.Settings(),
		Renderer:      c.renderer.Name(),
		Duration:      time.Since(start),
	}
	result.Summary.DurationMS = result.Summary.Duration.Milliseconds()
	for _, page := range result.Images {
		result.Summary.TotalBytes += int64(page.SizeBytes)
	}

	c.logger.Info("Converted document", "filename", src.Filename, "pages", pageCount, "images", len(result.Images), "failed", len(result.Failures), "bytes", result.Summary.TotalBytes, "duration", result.Summary.Duration)
	return result, nil
}

// renderPage rasterizes one page, refusing pages whose raster would exceed the pixel limit
func (c *Converter) renderPage(doc pdfrenderer.Document, index, dpi int) (img image.Image, widthPt, heightPt float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = &PageConversionError{PageIndex: index, Err: fmt.Errorf("renderer panic: %v", r)}
		}
	}()

	widthPt, heightPt, err = doc.PageSize(index)
	if err != nil {
		return nil, 0, 0, &PageConversionError{PageIndex: index, Err: err}
	}
	w, h := pdfrenderer.PixelSize(widthPt, heightPt, float64(dpi))
	if w <= 0 || h <= 0 {
		return nil, 0, 0, &PageConversionError{PageIndex: index, Err: fmt.Errorf("page has an empty media box")}
	}
	if c.maxPagePixels > 0 && int64(w)*int64(h) > c.maxPagePixels {
		return nil, 0, 0, &PageConversionError{PageIndex: index, Err: fmt.Errorf("%dx%d at %d dpi: %w", w, h, dpi, ErrPixelLimit)}
	}

	img, err = doc.RenderPage(index, float64(dpi))
	if err != nil {
		return nil, 0, 0, &PageConversionError{PageIndex: index, Err: err}
	}
	return img, widthPt, heightPt, nil
}

func (c *Converter) encodePage(img image.Image, opts Options, index int) (*PageImage, error) {
	data, out, err := encodeImage(img, opts)
	if err != nil {
		return nil, &PageConversionError{PageIndex: index, Err: fmt.Errorf("encode %s: %w", opts.Format, err)}
	}
	b := out.Bounds()
	return &PageImage{
		PageIndex: index,
		Page:      index + 1,
		Width:     b.Dx(),
		Height:    b.Dy(),
		SizeBytes: len(data),
		MimeType:  opts.Format.MimeType(),
		DPI:       opts.DPI,
		Data:      data,
	}, nil
}

func (c *Converter) recordFailure(result *ConversionResult, filename string, index int, err error) {
	c.logger.Warn("Skipping page", "filename", filename, "page", index+1, "error", err)
	reason := err.Error()
	if pageErr, ok := err.(*PageConversionError); ok {
		reason = pageErr.Err.Error()
	}
	result.Failures = append(result.Failures, PageFailure{PageIndex: index, Page: index + 1, Reason: reason})
}

func baseName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "document"
	}
	return base
}

// pageFilename numbers pages from 1 with three digits: report_page_001.png
func pageFilename(filename string, index int, format Format) string {
	return fmt.Sprintf("%s_page_%03d.%s", baseName(filename), index+1, format.Extension())
}

func combinedFilename(filename string, format Format) string {
	return fmt.Sprintf("%s.%s", baseName(filename), format.Extension())
}
