package converter

import (
	"errors"
	"fmt"
)

// ErrPixelLimit marks pages whose raster would exceed the configured pixel budget
var ErrPixelLimit = errors.New("page exceeds the pixel limit")

// InvalidConfigurationError names the offending option. It is always returned before
// any document is opened.
type InvalidConfigurationError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// CorruptDocumentError is returned when the renderer cannot open the bytes as a PDF
type CorruptDocumentError struct {
	Filename string
	Err      error
}

func (e *CorruptDocumentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("corrupt document %s", e.Filename)
	}
	return fmt.Sprintf("corrupt document %s: %v", e.Filename, e.Err)
}

func (e *CorruptDocumentError) Unwrap() error {
	return e.Err
}

// PageConversionError reports a single page that could not be rasterized or encoded
type PageConversionError struct {
	PageIndex int
	Err       error
}

func (e *PageConversionError) Error() string {
	return fmt.Sprintf("page %d: %v", e.PageIndex+1, e.Err)
}

func (e *PageConversionError) Unwrap() error {
	return e.Err
}
