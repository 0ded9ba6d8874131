package pdfrenderer

import (
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// instanceTimeout bounds how long Open waits for a free PDFium worker
const instanceTimeout = 30 * time.Second

// PDFiumRenderer implements PDF rendering using go-pdfium with WebAssembly (pure Go, no CGo)
type PDFiumRenderer struct {
	pool pdfium.Pool
}

// NewPDFiumRenderer creates a new PDFium-based PDF renderer using WebAssembly.
// Every open document holds one worker, so workers is the number of documents
// that can be converted at the same time.
func NewPDFiumRenderer(workers int) (*PDFiumRenderer, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  workers,
		MaxTotal: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	return &PDFiumRenderer{pool: pool}, nil
}

// Name returns the backend name
func (r *PDFiumRenderer) Name() string {
	return "pdfium"
}

// Open borrows a worker from the pool and loads the document into it
func (r *PDFiumRenderer) Open(data []byte) (Document, error) {
	instance, err := r.pool.GetInstance(instanceTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get PDFium instance: %v", ErrRendererBusy, err)
	}

	doc, err := instance.OpenDocument(&requests.OpenDocument{
		File: &data,
	})
	if err != nil {
		instance.Close()
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}

	pageCountResp, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		instance.Close()
		return nil, fmt.Errorf("unable to get page count: %w", err)
	}

	return &pdfiumDocument{
		instance:  instance,
		document:  doc.Document,
		pageCount: pageCountResp.PageCount,
	}, nil
}

// Close cleans up resources used by the PDFium renderer
func (r *PDFiumRenderer) Close() error {
	if r.pool != nil {
		err := r.pool.Close()
		r.pool = nil
		return err
	}
	return nil
}

type pdfiumDocument struct {
	instance  pdfium.Pdfium
	document  references.FPDF_DOCUMENT
	pageCount int
}

func (d *pdfiumDocument) NumPage() int {
	return d.pageCount
}

func (d *pdfiumDocument) PageSize(page int) (float64, float64, error) {
	if page < 0 || page >= d.pageCount {
		return 0, 0, ErrPageOutOfRange
	}
	size, err := d.instance.FPDF_GetPageSizeByIndex(&requests.FPDF_GetPageSizeByIndex{
		Document: d.document,
		Index:    page,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("unable to read size of page %d: %w", page, err)
	}
	return size.Width, size.Height, nil
}

func (d *pdfiumDocument) RenderPage(page int, dpi float64) (image.Image, error) {
	if page < 0 || page >= d.pageCount {
		return nil, ErrPageOutOfRange
	}
	pageRender, err := d.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: int(dpi + 0.5),
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{
				Document: d.document,
				Index:    page,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", page, err)
	}
	// The bitmap lives in WebAssembly memory that Cleanup releases
	img := imaging.Clone(pageRender.Result.Image)
	pageRender.Cleanup()

	return img, nil
}

func (d *pdfiumDocument) Close() error {
	_, err := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.document,
	})
	if closeErr := d.instance.Close(); err == nil {
		err = closeErr
	}
	return err
}
