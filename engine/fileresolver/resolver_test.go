package fileresolver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/drummonds/pdf2image/engine/pdfrenderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireReason(t *testing.T, err error, want Reason) *FileAccessError {
	t.Helper()
	var accessErr *FileAccessError
	require.True(t, errors.As(err, &accessErr), "expected *FileAccessError, got %T: %v", err, err)
	assert.Equal(t, want, accessErr.Reason, accessErr.Error())
	return accessErr
}

func pdfServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	body := pdfrenderer.SamplePDF("served")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		switch r.URL.Path {
		case "/files/report.pdf", "/report.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(body)
		case "/files/secret.pdf":
			w.WriteHeader(http.StatusForbidden)
		case "/files/expired.pdf":
			w.WriteHeader(http.StatusUnauthorized)
		case "/files/page.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body>login required</body></html>"))
		case "/files/huge.pdf":
			w.Write(body)
			w.Write(make([]byte, 4096))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_InlineUpload(t *testing.T) {
	r := New(Options{})
	data := pdfrenderer.SamplePDF("inline")

	file, err := r.Resolve(context.Background(), FileRef{Filename: "inline.pdf", Data: data})
	require.NoError(t, err)
	assert.Equal(t, "inline.pdf", file.Filename)
	assert.Equal(t, "upload", file.Source)
	assert.Equal(t, data, file.Data)
}

func TestResolve_InlineDefaultsFilename(t *testing.T) {
	file, err := New(Options{}).Resolve(context.Background(), FileRef{Data: pdfrenderer.SamplePDF("x")})
	require.NoError(t, err)
	assert.Equal(t, "document.pdf", file.Filename)
}

func TestResolve_InlineNotAPDF(t *testing.T) {
	_, err := New(Options{}).Resolve(context.Background(), FileRef{
		Filename: "notes.pdf",
		Data:     []byte("just some text pretending to be a pdf"),
	})
	accessErr := requireReason(t, err, ReasonNotAPDF)
	assert.Equal(t, "notes.pdf", accessErr.Source)
}

func TestResolve_InlineTooLarge(t *testing.T) {
	_, err := New(Options{MaxFileSize: 16}).Resolve(context.Background(), FileRef{Data: pdfrenderer.SamplePDF("big")})
	accessErr := requireReason(t, err, ReasonNotAPDF)
	assert.Contains(t, accessErr.Message, "limit")
}

func TestResolve_EmptyReference(t *testing.T) {
	_, err := New(Options{}).Resolve(context.Background(), FileRef{Filename: "missing.pdf"})
	requireReason(t, err, ReasonNotFound)
}

func TestResolve_DataAndURL(t *testing.T) {
	_, err := New(Options{}).Resolve(context.Background(), FileRef{Data: []byte("%PDF-"), URL: "http://example.com/a.pdf"})
	requireReason(t, err, ReasonInvalidURL)
}

func TestResolve_AbsoluteURL(t *testing.T) {
	srv := pdfServer(t, nil)

	file, err := New(Options{}).Resolve(context.Background(), FileRef{URL: srv.URL + "/report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", file.Filename)
	assert.Equal(t, srv.URL+"/report.pdf", file.Source)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF-"))
}

func TestResolve_HTTPStatusMapping(t *testing.T) {
	srv := pdfServer(t, nil)
	r := New(Options{FilesURL: srv.URL})

	cases := []struct {
		path string
		want Reason
	}{
		{"/files/secret.pdf", ReasonPermissionDenied},
		{"/files/expired.pdf", ReasonPermissionDenied},
		{"/files/nothing-here.pdf", ReasonNotFound},
		{"/files/page.html", ReasonNotAPDF},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), FileRef{URL: tc.path})
			requireReason(t, err, tc.want)
		})
	}
}

func TestResolve_RelativeURL(t *testing.T) {
	var hits atomic.Int32
	srv := pdfServer(t, &hits)

	t.Run("FILES_URL base", func(t *testing.T) {
		file, err := New(Options{FilesURL: srv.URL + "/"}).Resolve(context.Background(), FileRef{URL: "/files/report.pdf", Filename: "q3.pdf"})
		require.NoError(t, err)
		assert.Equal(t, "q3.pdf", file.Filename)
	})

	t.Run("DIFY_API_URL fallback", func(t *testing.T) {
		_, err := New(Options{DifyAPIURL: srv.URL}).Resolve(context.Background(), FileRef{URL: "/files/report.pdf"})
		require.NoError(t, err)
	})

	t.Run("no base configured", func(t *testing.T) {
		before := hits.Load()
		_, err := New(Options{}).Resolve(context.Background(), FileRef{URL: "/files/report.pdf"})
		accessErr := requireReason(t, err, ReasonInvalidURL)
		assert.Contains(t, accessErr.Message, "FILES_URL")
		assert.Equal(t, before, hits.Load(), "no request should be made")
	})

	t.Run("relative path without slash", func(t *testing.T) {
		_, err := New(Options{FilesURL: srv.URL}).Resolve(context.Background(), FileRef{URL: "files/report.pdf"})
		requireReason(t, err, ReasonInvalidURL)
	})
}

func TestResolve_UnsupportedScheme(t *testing.T) {
	_, err := New(Options{}).Resolve(context.Background(), FileRef{URL: "ftp://example.com/report.pdf"})
	requireReason(t, err, ReasonInvalidURL)
}

func TestResolve_S3NotConfigured(t *testing.T) {
	_, err := New(Options{}).Resolve(context.Background(), FileRef{URL: "s3://bucket/reports/q3.pdf"})
	accessErr := requireReason(t, err, ReasonInvalidURL)
	assert.Contains(t, accessErr.Message, "S3")
}

func TestResolve_BodyTooLarge(t *testing.T) {
	srv := pdfServer(t, nil)
	limit := int64(len(pdfrenderer.SamplePDF("served")) + 100)

	_, err := New(Options{FilesURL: srv.URL, MaxFileSize: limit}).Resolve(context.Background(), FileRef{URL: "/files/huge.pdf"})
	accessErr := requireReason(t, err, ReasonNotAPDF)
	assert.Contains(t, accessErr.Message, "limit")
}

func TestResolve_TimeoutDoesNotHang(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	r := New(Options{FetchTimeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := r.Resolve(context.Background(), FileRef{URL: srv.URL + "/slow.pdf"})
	elapsed := time.Since(start)

	requireReason(t, err, ReasonTimeout)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestResolve_ParentDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(Options{FetchTimeout: time.Minute}).Resolve(ctx, FileRef{URL: srv.URL + "/slow.pdf"})
	requireReason(t, err, ReasonTimeout)
}

func TestResolve_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	_, err = New(Options{FetchTimeout: time.Second}).Resolve(context.Background(), FileRef{URL: "http://" + addr + "/report.pdf"})
	requireReason(t, err, ReasonTimeout)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestParseS3URL(t *testing.T) {
	cases := []struct {
		raw    string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://docs/reports/q3.pdf", "docs", "reports/q3.pdf", true},
		{"s3://docs/", "docs", "", false},
		{"s3:///q3.pdf", "", "q3.pdf", false},
	}
	for _, tc := range cases {
		u, err := url.Parse(tc.raw)
		require.NoError(t, err)
		bucket, key, ok := parseS3URL(u)
		assert.Equal(t, tc.bucket, bucket, tc.raw)
		assert.Equal(t, tc.key, key, tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
	}
}
