package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/drummonds/pdf2image/engine/converter"
)

// Client talks to a running pdf2image server
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// RemoteError is a failed conversion as reported by the server
type RemoteError struct {
	StatusCode int
	APIError
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Kind, e.APIError.Error)
	if e.Field != "" {
		msg += " [field " + e.Field + "]"
	}
	return msg
}

// Convert posts local PDF paths and URLs to the server. Inputs containing "://" or starting with
// "/files/" are sent as URLs, everything else is read from disk and uploaded.
func (c *Client) Convert(ctx context.Context, inputs []string, opts converter.Options) (*ConvertResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, input := range inputs {
		if IsRemoteInput(input) {
			if err := writer.WriteField("urls", input); err != nil {
				return nil, fmt.Errorf("failed to write url field: %w", err)
			}
			continue
		}
		if err := addFormFile(writer, input); err != nil {
			return nil, err
		}
	}

	fields := map[string]string{
		"image_format":  string(opts.Format),
		"dpi":           strconv.Itoa(opts.DPI),
		"quality":       strconv.Itoa(opts.JPEGQuality),
		"split_pages":   strconv.FormatBool(opts.SplitPages),
		"alpha_channel": strconv.FormatBool(opts.Transparent),
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/convert", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call conversion service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		remoteErr := &RemoteError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, &remoteErr.APIError); err != nil || remoteErr.Kind == "" {
			remoteErr.Kind = "unknown"
			remoteErr.APIError.Error = strings.TrimSpace(string(bodyBytes))
		}
		return nil, remoteErr
	}

	var convertResp ConvertResponse
	if err := json.NewDecoder(resp.Body).Decode(&convertResp); err != nil {
		return nil, fmt.Errorf("failed to decode conversion response: %w", err)
	}
	return &convertResp, nil
}

// Decode returns the image bytes of a blob
func (b ImageBlob) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(b.Data)
}

func addFormFile(writer *multipart.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy file data: %w", err)
	}
	return nil
}

// IsRemoteInput reports whether input names a URL, an s3:// object or a FILES_URL path
// rather than a local file
func IsRemoteInput(input string) bool {
	return strings.Contains(input, "://") || strings.HasPrefix(input, "/files/")
}
