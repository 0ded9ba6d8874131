package engine

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/drummonds/pdf2image/config"
	"github.com/drummonds/pdf2image/engine/converter"
	"github.com/drummonds/pdf2image/engine/fileresolver"
	"github.com/drummonds/pdf2image/engine/pdfrenderer"
	"github.com/labstack/echo/v4"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	Service      *Service
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
}

// convertRequest is the JSON form of a conversion request. Parameter names follow the plugin.
type convertRequest struct {
	Files        []fileresolver.FileRef `json:"files"`
	URLs         []string               `json:"urls"`
	ImageFormat  string                 `json:"image_format"`
	DPI          *int                   `json:"dpi"`
	Quality      *int                   `json:"quality"`
	SplitPages   *bool                  `json:"split_pages"`
	AlphaChannel *bool                  `json:"alpha_channel"`
}

// ImageBlob is one generated image in the response, base64 encoded
type ImageBlob struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	SourcePDF string `json:"source_pdf"`
	PageIndex int    `json:"page_index"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Data      string `json:"data"`
}

// ConvertResponse is the body of a successful conversion
type ConvertResponse struct {
	*BatchResult
	Images []ImageBlob `json:"images"`
}

// APIError is the JSON body of every failed request
type APIError struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
	Source string `json:"source,omitempty"`
}

// RegisterRoutes adds the API endpoints to echo
func (serverHandler *ServerHandler) RegisterRoutes() {
	serverHandler.Echo.GET("/api/health", serverHandler.GetHealth)
	serverHandler.Echo.POST("/api/convert", serverHandler.ConvertDocuments)
}

// ConvertDocuments converts uploaded or referenced PDFs to images
// @Summary Convert PDF documents to images
// @Description Accepts multipart uploads (files, urls) or a JSON body and returns one image per page, base64 encoded, with a summary
// @Tags Conversion
// @Accept multipart/form-data,json
// @Produce json
// @Param files formData file false "PDF files to convert"
// @Param urls formData string false "PDF URLs, absolute or relative to FILES_URL"
// @Param image_format formData string false "png or jpeg" default(png)
// @Param dpi formData int false "Resolution from 72 to 600" default(150)
// @Param quality formData int false "JPEG quality from 1 to 100" default(95)
// @Param split_pages formData bool false "One image per page" default(true)
// @Param alpha_channel formData bool false "Transparent background, png only" default(false)
// @Success 200 {object} ConvertResponse "Converted images and summary"
// @Failure 400 {object} APIError "Invalid configuration or request"
// @Failure 422 {object} APIError "A file could not be accessed"
// @Failure 504 {object} APIError "Request timed out"
// @Failure 500 {object} APIError "Internal server error"
// @Router /convert [post]
func (serverHandler *ServerHandler) ConvertDocuments(context echo.Context) error {
	request, err := serverHandler.readConvertRequest(context)
	if err != nil {
		return errorResponse(context, err)
	}
	options, err := request.options()
	if err != nil {
		return errorResponse(context, err)
	}

	files := request.Files
	for _, rawURL := range request.URLs {
		files = append(files, fileresolver.FileRef{URL: rawURL})
	}

	batch, err := serverHandler.Service.ConvertBatch(context.Request().Context(), BatchRequest{Files: files, Options: options})
	if err != nil {
		return errorResponse(context, err)
	}

	response := ConvertResponse{BatchResult: batch, Images: []ImageBlob{}}
	for _, file := range batch.Files {
		if file.Result == nil {
			continue
		}
		for _, page := range file.Result.Images {
			response.Images = append(response.Images, ImageBlob{
				Filename:  page.Filename,
				MimeType:  page.MimeType,
				SourcePDF: file.Filename,
				PageIndex: page.PageIndex,
				Width:     page.Width,
				Height:    page.Height,
				Data:      base64.StdEncoding.EncodeToString(page.Data),
			})
		}
	}
	return context.JSON(http.StatusOK, response)
}

// GetHealth reports that the server is up and which renderer it uses
// @Summary Health check
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "Status"
// @Router /health [get]
func (serverHandler *ServerHandler) GetHealth(context echo.Context) error {
	return context.JSON(http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"renderer":         serverHandler.Service.Converter.RendererName(),
		"filesURL":         serverHandler.ServerConfig.FilesURL != "" || serverHandler.ServerConfig.DifyAPIURL != "",
		"maxParallelFiles": serverHandler.Service.parallelism(),
	})
}

func (serverHandler *ServerHandler) readConvertRequest(context echo.Context) (*convertRequest, error) {
	contentType := context.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		request := &convertRequest{}
		if err := context.Bind(request); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return request, nil
	}

	form, err := context.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	request := &convertRequest{ImageFormat: formValue(form.Value, "image_format")}
	for _, fileHeader := range form.File["files"] {
		file, err := fileHeader.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: unable to read upload %s: %v", errBadRequest, fileHeader.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(file, serverHandler.uploadLimit()))
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: unable to read upload %s: %v", errBadRequest, fileHeader.Filename, err)
		}
		request.Files = append(request.Files, fileresolver.FileRef{Filename: fileHeader.Filename, Data: data})
	}
	for _, value := range form.Value["urls"] {
		for _, rawURL := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == '\n' }) {
			if rawURL = strings.TrimSpace(rawURL); rawURL != "" {
				request.URLs = append(request.URLs, rawURL)
			}
		}
	}

	if request.DPI, err = parseIntParam(form.Value, "dpi", "dpi"); err != nil {
		return nil, err
	}
	if request.Quality, err = parseIntParam(form.Value, "quality", "jpeg_quality"); err != nil {
		return nil, err
	}
	if request.SplitPages, err = parseBoolParam(form.Value, "split_pages", "split_pages"); err != nil {
		return nil, err
	}
	if request.AlphaChannel, err = parseBoolParam(form.Value, "alpha_channel", "transparent"); err != nil {
		return nil, err
	}
	return request, nil
}

// uploadLimit reads one byte past the configured maximum so the resolver can report oversized uploads
func (serverHandler *ServerHandler) uploadLimit() int64 {
	if serverHandler.ServerConfig.MaxFileSize <= 0 {
		return 100<<20 + 1
	}
	return serverHandler.ServerConfig.MaxFileSize + 1
}

// options applies the request parameters on top of the defaults
func (request *convertRequest) options() (converter.Options, error) {
	options := converter.DefaultOptions()
	if request.ImageFormat != "" {
		format, err := converter.ParseFormat(request.ImageFormat)
		if err != nil {
			return options, err
		}
		options.Format = format
	}
	if request.DPI != nil {
		options.DPI = *request.DPI
	}
	if request.Quality != nil {
		options.JPEGQuality = *request.Quality
	}
	if request.SplitPages != nil {
		options.SplitPages = *request.SplitPages
	}
	if request.AlphaChannel != nil {
		options.Transparent = *request.AlphaChannel
	}
	return options, options.Validate()
}

func formValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func parseIntParam(values map[string][]string, key, field string) (*int, error) {
	raw := formValue(values, key)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &converter.InvalidConfigurationError{Field: field, Reason: fmt.Sprintf("must be an integer, got %q", raw)}
	}
	return &n, nil
}

func parseBoolParam(values map[string][]string, key, field string) (*bool, error) {
	raw := formValue(values, key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &converter.InvalidConfigurationError{Field: field, Reason: fmt.Sprintf("must be true or false, got %q", raw)}
	}
	return &b, nil
}

var errBadRequest = errors.New("bad request")

// errorResponse maps the typed errors of the conversion pipeline to HTTP status codes
func errorResponse(context echo.Context, err error) error {
	var configErr *converter.InvalidConfigurationError
	var accessErr *fileresolver.FileAccessError

	status := http.StatusInternalServerError
	body := APIError{Error: err.Error(), Kind: "internal"}
	switch {
	case errors.As(err, &configErr):
		status = http.StatusBadRequest
		body.Kind = "invalid_configuration"
		body.Field = configErr.Field
		body.Reason = configErr.Reason
	case errors.Is(err, ErrRequestTimeout):
		status = http.StatusGatewayTimeout
		body.Kind = "timeout"
	case errors.As(err, &accessErr):
		status = http.StatusUnprocessableEntity
		if accessErr.Reason == fileresolver.ReasonTimeout {
			status = http.StatusGatewayTimeout
		}
		body.Kind = "file_access"
		body.Reason = string(accessErr.Reason)
		body.Source = accessErr.Source
	case errors.Is(err, pdfrenderer.ErrRendererBusy):
		status = http.StatusServiceUnavailable
		body.Kind = "renderer_busy"
	case errors.Is(err, ErrNoFiles), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
		body.Kind = "bad_request"
	}

	if status == http.StatusInternalServerError {
		Logger.Error("Conversion request failed", "error", err)
	} else {
		Logger.Info("Conversion request rejected", "status", status, "error", err)
	}
	return context.JSON(status, body)
}
