package engine

import (
	"fmt"

	"github.com/drummonds/pdf2image/config"
	"github.com/drummonds/pdf2image/engine/pdfrenderer"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	if err := rendererChecks(serverHandler.Service.Converter.Renderer()); err != nil {
		Logger.Error("Renderer self check failed", "error", err)
		return err
	}
	filesURLChecks(serverHandler.ServerConfig)
	return nil
}

// rendererChecks opens and rasterizes a built-in one page document
func rendererChecks(renderer pdfrenderer.Renderer) error {
	doc, err := renderer.Open(pdfrenderer.SamplePDF("startup check"))
	if err != nil {
		return fmt.Errorf("%s renderer cannot open PDFs: %w", renderer.Name(), err)
	}
	defer doc.Close()

	if doc.NumPage() != 1 {
		return fmt.Errorf("%s renderer reported %d pages for a one page document", renderer.Name(), doc.NumPage())
	}
	img, err := doc.RenderPage(0, pdfrenderer.PointsPerInch)
	if err != nil {
		return fmt.Errorf("%s renderer cannot rasterize: %w", renderer.Name(), err)
	}
	bounds := img.Bounds()
	Logger.Info("PDF renderer ready", "renderer", renderer.Name(), "width", bounds.Dx(), "height", bounds.Dy())
	return nil
}

// filesURLChecks warns when relative file references cannot be resolved
func filesURLChecks(serverConfig config.ServerConfig) {
	switch {
	case serverConfig.FilesURL != "":
		Logger.Info("Relative file URLs resolve against FILES_URL", "filesURL", serverConfig.FilesURL)
	case serverConfig.DifyAPIURL != "":
		Logger.Info("FILES_URL not set, relative file URLs resolve against DIFY_API_URL", "difyAPIURL", serverConfig.DifyAPIURL)
	default:
		Logger.Warn("Neither FILES_URL nor DIFY_API_URL is set, only uploads and absolute URLs can be converted")
	}
}
