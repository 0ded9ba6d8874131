// Package fileresolver turns file references (inline uploads or URLs) into PDF bytes held
// in memory.
package fileresolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxFileSize  = 100 << 20
	defaultFilename     = "document.pdf"
	pdfMIME             = "application/pdf"
)

// FileRef points at one input document. Exactly one of Data or URL is set.
type FileRef struct {
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// File is a resolved document
type File struct {
	Filename string
	Data     []byte
	Source   string // "upload", or the URL the bytes came from
}

// Options configures a Resolver
type Options struct {
	FilesURL     string
	DifyAPIURL   string
	FetchTimeout time.Duration
	MaxFileSize  int64
	HTTPClient   *http.Client
	S3           *minio.Client // nil disables s3:// references
	Logger       *slog.Logger
}

// Resolver acquires file bytes. It keeps no state between calls.
type Resolver struct {
	filesURL     string
	difyAPIURL   string
	fetchTimeout time.Duration
	maxFileSize  int64
	client       *http.Client
	s3           *minio.Client
	logger       *slog.Logger
}

// New creates a resolver, filling in defaults for unset options
func New(opts Options) *Resolver {
	r := &Resolver{
		filesURL:     strings.TrimRight(opts.FilesURL, "/"),
		difyAPIURL:   strings.TrimRight(opts.DifyAPIURL, "/"),
		fetchTimeout: opts.FetchTimeout,
		maxFileSize:  opts.MaxFileSize,
		client:       opts.HTTPClient,
		s3:           opts.S3,
		logger:       opts.Logger,
	}
	if r.fetchTimeout <= 0 {
		r.fetchTimeout = defaultFetchTimeout
	}
	if r.maxFileSize <= 0 {
		r.maxFileSize = defaultMaxFileSize
	}
	if r.client == nil {
		r.client = &http.Client{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve returns the bytes behind ref, or a *FileAccessError
func (r *Resolver) Resolve(ctx context.Context, ref FileRef) (*File, error) {
	hasData := len(ref.Data) > 0
	hasURL := strings.TrimSpace(ref.URL) != ""

	switch {
	case hasData && hasURL:
		return nil, accessError(ReasonInvalidURL, ref.Filename, "file reference has both inline data and a URL", nil)
	case hasData:
		name := ref.Filename
		if name == "" {
			name = defaultFilename
		}
		if int64(len(ref.Data)) > r.maxFileSize {
			return nil, accessError(ReasonNotAPDF, name, fmt.Sprintf("upload exceeds the %d byte limit", r.maxFileSize), nil)
		}
		if err := checkPDF(name, ref.Data); err != nil {
			return nil, err
		}
		return &File{Filename: name, Data: ref.Data, Source: "upload"}, nil
	case hasURL:
		return r.fetch(ctx, ref)
	default:
		source := ref.Filename
		if source == "" {
			source = "file reference"
		}
		return nil, accessError(ReasonNotFound, source, "file reference has neither data nor a URL", nil)
	}
}

func (r *Resolver) fetch(ctx context.Context, ref FileRef) (*File, error) {
	raw := strings.TrimSpace(ref.URL)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, accessError(ReasonInvalidURL, raw, "URL cannot be parsed", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	var data []byte
	switch u.Scheme {
	case "s3":
		data, err = r.fetchS3(ctx, raw, u)
	default:
		var target string
		target, err = r.absoluteURL(raw, u)
		if err == nil {
			data, err = r.fetchHTTP(ctx, raw, target)
		}
	}
	if err != nil {
		return nil, err
	}

	name := ref.Filename
	if name == "" {
		name = filenameFromURL(u)
	}
	if err := checkPDF(name, data); err != nil {
		return nil, err
	}

	r.logger.Debug("Fetched file", "filename", name, "bytes", len(data))
	return &File{Filename: name, Data: data, Source: raw}, nil
}

// absoluteURL resolves host-relative references ("/files/...") against FILES_URL,
// then DIFY_API_URL
func (r *Resolver) absoluteURL(raw string, u *url.URL) (string, error) {
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return "", accessError(ReasonInvalidURL, raw, "URL has no host", nil)
		}
		return raw, nil
	case "":
		if !strings.HasPrefix(raw, "/") {
			return "", accessError(ReasonInvalidURL, raw, "relative URL must start with /", nil)
		}
		base := r.filesURL
		if base == "" {
			base = r.difyAPIURL
		}
		if base == "" {
			return "", accessError(ReasonInvalidURL, raw, "FILES_URL is not configured, relative file URLs cannot be resolved", nil)
		}
		baseURL, err := url.Parse(base)
		if err != nil || (baseURL.Scheme != "http" && baseURL.Scheme != "https") || baseURL.Host == "" {
			return "", accessError(ReasonInvalidURL, raw, fmt.Sprintf("configured base URL %q is not an http(s) URL", base), err)
		}
		return base + raw, nil
	default:
		return "", accessError(ReasonInvalidURL, raw, fmt.Sprintf("unsupported URL scheme %q", u.Scheme), nil)
	}
}

func (r *Resolver) fetchHTTP(ctx context.Context, source, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, accessError(ReasonInvalidURL, source, "cannot build request", err)
	}

	r.logger.Debug("Fetching file", "url", target)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, classifyNetError(ctx, source, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, accessError(ReasonPermissionDenied, source, fmt.Sprintf("server answered %s", resp.Status), nil)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, accessError(ReasonNotFound, source, fmt.Sprintf("server answered %s", resp.Status), nil)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return nil, accessError(ReasonTimeout, source, fmt.Sprintf("server answered %s", resp.Status), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, accessError(ReasonNotFound, source, fmt.Sprintf("server answered %s", resp.Status), nil)
	}

	if resp.ContentLength > r.maxFileSize {
		return nil, accessError(ReasonNotAPDF, source, fmt.Sprintf("file is %d bytes, limit is %d", resp.ContentLength, r.maxFileSize), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxFileSize+1))
	if err != nil {
		return nil, classifyNetError(ctx, source, err)
	}
	if int64(len(data)) > r.maxFileSize {
		return nil, accessError(ReasonNotAPDF, source, fmt.Sprintf("file exceeds the %d byte limit", r.maxFileSize), nil)
	}
	return data, nil
}

// classifyNetError maps transport failures onto access reasons
func classifyNetError(ctx context.Context, source string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return accessError(ReasonTimeout, source, "fetch timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("fetch of %s cancelled: %w", source, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return accessError(ReasonTimeout, source, "fetch timed out", err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return accessError(ReasonTimeout, source, "host unreachable: name cannot be resolved", err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return accessError(ReasonTimeout, source, "host unreachable: connection refused", err)
	}
	return accessError(ReasonTimeout, source, "host unreachable", err)
}

// checkPDF sniffs the content rather than trusting names or content types
func checkPDF(name string, data []byte) error {
	if len(data) == 0 {
		return accessError(ReasonNotAPDF, name, "file is empty", nil)
	}
	mtype := mimetype.Detect(data)
	if !mtype.Is(pdfMIME) {
		return accessError(ReasonNotAPDF, name, fmt.Sprintf("content is %s, not a PDF", mtype.String()), nil)
	}
	return nil
}

func filenameFromURL(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return defaultFilename
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		return unescaped
	}
	return base
}
