package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/drummonds/pdf2image/config"
	"github.com/drummonds/pdf2image/engine/converter"
	"github.com/drummonds/pdf2image/engine/fileresolver"
	"github.com/drummonds/pdf2image/engine/pdfrenderer"
	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

var (
	// ErrNoFiles is returned for a request without any file references
	ErrNoFiles = errors.New("no files provided, please upload PDF files for conversion")

	// ErrRequestTimeout is returned when the request deadline expires before every file is converted
	ErrRequestTimeout = errors.New("request timed out")
)

// BatchRequest is one conversion request: a list of documents and the options applied to all of them
type BatchRequest struct {
	Files   []fileresolver.FileRef `json:"files"`
	Options converter.Options      `json:"options"`
}

// FileResult is the outcome for one input document, in request order
type FileResult struct {
	Filename string                      `json:"filename"`
	Source   string                      `json:"source"`
	Result   *converter.ConversionResult `json:"result,omitempty"`
	Error    string                      `json:"error,omitempty"`
}

// BatchSummary aggregates all files of a request
type BatchSummary struct {
	TotalFilesProcessed int                `json:"total_files_processed"`
	FailedFiles         int                `json:"failed_files"`
	TotalImagesCreated  int                `json:"total_images_created"`
	TotalBytes          int64              `json:"total_bytes"`
	Settings            converter.Settings `json:"conversion_settings"`
	Duration            time.Duration      `json:"-"`
	DurationMS          int64              `json:"duration_ms"`
}

// BatchResult is everything produced for a request. Nothing of it is kept after the response.
type BatchResult struct {
	RequestID string       `json:"request_id"`
	Files     []FileResult `json:"files"`
	Summary   BatchSummary `json:"summary"`
	Messages  []string     `json:"messages"`
}

// Images returns all generated images across files, in request then page order
func (b *BatchResult) Images() []converter.PageImage {
	var images []converter.PageImage
	for _, file := range b.Files {
		if file.Result != nil {
			images = append(images, file.Result.Images...)
		}
	}
	return images
}

// Service resolves and converts batches of PDFs
type Service struct {
	Resolver         *fileresolver.Resolver
	Converter        *converter.Converter
	MaxParallelFiles int
	RequestTimeout   time.Duration
}

// NewService wires the resolver and converter from the server configuration
func NewService(serverConfig config.ServerConfig, renderer pdfrenderer.Renderer) (*Service, error) {
	resolverOpts := fileresolver.Options{
		FilesURL:     serverConfig.FilesURL,
		DifyAPIURL:   serverConfig.DifyAPIURL,
		FetchTimeout: serverConfig.FetchTimeout,
		MaxFileSize:  serverConfig.MaxFileSize,
		Logger:       Logger,
	}
	if serverConfig.S3Endpoint != "" {
		s3Client, err := fileresolver.NewS3Client(serverConfig.S3Endpoint, serverConfig.S3AccessKey, serverConfig.S3SecretKey, serverConfig.S3UseSSL)
		if err != nil {
			return nil, err
		}
		resolverOpts.S3 = s3Client
		Logger.Info("S3 references enabled", "endpoint", serverConfig.S3Endpoint)
	}

	return &Service{
		Resolver:         fileresolver.New(resolverOpts),
		Converter:        converter.New(renderer, serverConfig.MaxPagePixels, Logger),
		MaxParallelFiles: serverConfig.MaxParallelFiles,
		RequestTimeout:   serverConfig.RequestTimeout,
	}, nil
}

// ConvertBatch validates the options, fetches every file and converts them. Invalid options and
// unreadable files fail the whole request before any conversion starts. A corrupt PDF is
// reported on its own FileResult and the other files still convert.
func (s *Service) ConvertBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	start := time.Now()
	requestID := ulid.Make().String()
	logger := Logger.With("requestID", requestID)

	if err := req.Options.Validate(); err != nil {
		logger.Warn("Rejected conversion request", "error", err)
		return nil, err
	}
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}

	if s.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RequestTimeout)
		defer cancel()
	}

	files, err := s.resolveAll(ctx, req.Files)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w while fetching files: %v", ErrRequestTimeout, err)
		}
		logger.Warn("Unable to resolve files", "error", err)
		return nil, err
	}
	logger.Info("Resolved files", "count", len(files))

	results := make([]FileResult, len(files))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.parallelism())
	for i, file := range files {
		group.Go(func() error {
			results[i] = FileResult{Filename: file.Filename, Source: file.Source}
			result, err := s.Converter.Convert(groupCtx, converter.Source{Filename: file.Filename, Data: file.Data}, req.Options)
			var corrupt *converter.CorruptDocumentError
			switch {
			case errors.As(err, &corrupt):
				logger.Warn("Skipping corrupt document", "filename", file.Filename, "error", err)
				results[i].Error = err.Error()
				return nil
			case err != nil:
				return err
			}
			results[i].Result = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w during conversion", ErrRequestTimeout)
		}
		return nil, err
	}

	batch := &BatchResult{
		RequestID: requestID,
		Files:     results,
		Summary:   summarize(results, req.Options, time.Since(start)),
	}
	batch.Messages = batchMessages(batch)
	logger.Info("Conversion complete", "files", batch.Summary.TotalFilesProcessed, "images", batch.Summary.TotalImagesCreated, "bytes", batch.Summary.TotalBytes, "duration", batch.Summary.Duration)
	return batch, nil
}

// resolveAll fetches files concurrently and stops at the first failure
func (s *Service) resolveAll(ctx context.Context, refs []fileresolver.FileRef) ([]*fileresolver.File, error) {
	files := make([]*fileresolver.File, len(refs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.parallelism())
	for i, ref := range refs {
		group.Go(func() error {
			file, err := s.Resolver.Resolve(groupCtx, ref)
			if err != nil {
				return err
			}
			files[i] = file
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (s *Service) parallelism() int {
	if s.MaxParallelFiles < 1 {
		return 1
	}
	return s.MaxParallelFiles
}

func summarize(results []FileResult, opts converter.Options, elapsed time.Duration) BatchSummary {
	summary := BatchSummary{
		TotalFilesProcessed: len(results),
		Settings:            opts.Settings(),
		Duration:            elapsed,
		DurationMS:          elapsed.Milliseconds(),
	}
	for _, file := range results {
		if file.Result == nil {
			summary.FailedFiles++
			continue
		}
		summary.TotalImagesCreated += file.Result.Summary.ImagesCreated
		summary.TotalBytes += file.Result.Summary.TotalBytes
	}
	return summary
}

// batchMessages renders the human readable progress lines shown to the plugin user
func batchMessages(batch *BatchResult) []string {
	messages := make([]string, 0, len(batch.Files)+1)
	for _, file := range batch.Files {
		if file.Result == nil {
			messages = append(messages, fmt.Sprintf("❌ Error processing %s: %s", file.Filename, file.Error))
			continue
		}
		summary := file.Result.Summary
		line := fmt.Sprintf("✅ Successfully converted %s: %d pages → %d images (%s)",
			file.Filename, summary.TotalPages, summary.ImagesCreated, humanize.Bytes(uint64(summary.TotalBytes)))
		if summary.FailedPages > 0 {
			line += fmt.Sprintf(", %d pages skipped", summary.FailedPages)
		}
		messages = append(messages, line)
	}

	var final strings.Builder
	final.WriteString("📊 Conversion Complete!\n")
	fmt.Fprintf(&final, "• Files processed: %d\n", batch.Summary.TotalFilesProcessed)
	fmt.Fprintf(&final, "• Total images created: %d\n", batch.Summary.TotalImagesCreated)
	fmt.Fprintf(&final, "• Total size: %s\n", humanize.Bytes(uint64(batch.Summary.TotalBytes)))
	fmt.Fprintf(&final, "• Format: %s\n", strings.ToUpper(string(batch.Summary.Settings.Format)))
	fmt.Fprintf(&final, "• Resolution: %d DPI", batch.Summary.Settings.DPI)
	messages = append(messages, final.String())
	return messages
}
