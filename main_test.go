package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/drummonds/pdf2image/config"
	engine "github.com/drummonds/pdf2image/engine"
	"github.com/drummonds/pdf2image/engine/pdfrenderer"
)

func TestMain(m *testing.M) {
	injectGlobals(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// brokenRenderer refuses every document, enough for routing tests
type brokenRenderer struct{}

func (brokenRenderer) Name() string { return "broken" }

func (brokenRenderer) Close() error { return nil }

func (brokenRenderer) Open([]byte) (pdfrenderer.Document, error) {
	return nil, errors.New("renderer unavailable")
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{MaxFileSize: 10 << 20, MaxParallelFiles: 2}
}

func TestServer_UnknownRouteIsJSON(t *testing.T) {
	service, err := engine.NewService(testConfig(), brokenRenderer{})
	require.NoError(t, err)
	e, _ := newServer(testConfig(), service)

	req := httptest.NewRequest(http.MethodGet, "/api/nothing", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"path":"/api/nothing"`)
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 26, "request ids are ULIDs")
}

func TestServer_Health(t *testing.T) {
	service, err := engine.NewService(testConfig(), brokenRenderer{})
	require.NoError(t, err)
	e, _ := newServer(testConfig(), service)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"renderer":"broken"`)
}

func TestServer_StartupChecksFailWithBrokenRenderer(t *testing.T) {
	service, err := engine.NewService(testConfig(), brokenRenderer{})
	require.NoError(t, err)
	_, handler := newServer(testConfig(), service)

	assert.Error(t, handler.StartupChecks())
}

func TestBodyLimit(t *testing.T) {
	assert.Equal(t, "401M", bodyLimit(config.ServerConfig{MaxFileSize: 100 << 20, MaxParallelFiles: 2}))
	assert.Equal(t, "801M", bodyLimit(config.ServerConfig{MaxFileSize: 100 << 20, MaxParallelFiles: 8}))
	assert.Equal(t, "5M", bodyLimit(config.ServerConfig{MaxFileSize: 1024}))
}

func TestIsAddressInUse(t *testing.T) {
	assert.False(t, isAddressInUse(nil))
	assert.True(t, isAddressInUse(fmt.Errorf("listen tcp :8000: bind: address already in use")))
	assert.False(t, isAddressInUse(fmt.Errorf("permission denied")))
}

// TestConvertEndToEnd runs a real MuPDF conversion through the full middleware stack
func TestConvertEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping MuPDF integration test in short mode")
	}

	renderer, err := pdfrenderer.NewFitzRenderer()
	require.NoError(t, err)
	defer renderer.Close()

	service, err := engine.NewService(testConfig(), renderer)
	require.NoError(t, err)
	e, handler := newServer(testConfig(), service)
	require.NoError(t, handler.StartupChecks())

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "sample.pdf")
	require.NoError(t, err)
	_, err = part.Write(pdfrenderer.SamplePDF("End to end", pdfrenderer.A4, pdfrenderer.Letter))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("dpi", "72"))
	require.NoError(t, writer.WriteField("alpha_channel", "true"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response engine.ConvertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Images, 2)
	assert.InDelta(t, 595, response.Images[0].Width, 2)
	assert.InDelta(t, 612, response.Images[1].Width, 2)
	assert.Equal(t, "End to end", response.Files[0].Result.Document.Title)
}
