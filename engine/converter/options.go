package converter

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Format is the output image encoding
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

const (
	MinDPI             = 72
	MaxDPI             = 600
	DefaultDPI         = 150
	DefaultJPEGQuality = 95
)

// ParseFormat accepts png, jpeg and jpg in any case
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	default:
		return "", &InvalidConfigurationError{Field: "format", Reason: fmt.Sprintf("must be png or jpeg, got %q", s)}
	}
}

// Extension is the file extension used for generated filenames
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return "png"
}

// MimeType of the encoded images
func (f Format) MimeType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Options is the validated conversion configuration for one request.
//
// JPEGQuality only matters for jpeg output and is ignored for png. Transparent is only
// valid for png output. SplitPages=false stitches all pages into one tall image.
type Options struct {
	Format      Format `json:"format"`
	DPI         int    `json:"dpi"`
	SplitPages  bool   `json:"split_pages"`
	JPEGQuality int    `json:"jpeg_quality"`
	Transparent bool   `json:"transparent"`
}

// DefaultOptions mirrors the plugin defaults: png, 150 DPI, one image per page
func DefaultOptions() Options {
	return Options{
		Format:      FormatPNG,
		DPI:         DefaultDPI,
		SplitPages:  true,
		JPEGQuality: DefaultJPEGQuality,
	}
}

// fieldOrder decides which field is reported when several are invalid
var fieldOrder = []string{"format", "dpi", "jpeg_quality", "transparent"}

// Validate checks every field and returns *InvalidConfigurationError for the first bad one
func (o Options) Validate() error {
	isJPEG := o.Format == FormatJPEG
	err := validation.ValidateStruct(&o,
		validation.Field(&o.Format,
			validation.Required,
			validation.In(FormatPNG, FormatJPEG).Error("must be png or jpeg"),
		),
		validation.Field(&o.DPI,
			validation.Required,
			validation.Min(MinDPI),
			validation.Max(MaxDPI),
		),
		validation.Field(&o.JPEGQuality,
			validation.When(isJPEG,
				validation.Required.Error("must be between 1 and 100"),
				validation.Min(1),
				validation.Max(100),
			),
		),
		validation.Field(&o.Transparent,
			validation.When(isJPEG, validation.In(false).Error("is only supported for png output")),
		),
	)
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	for _, field := range fieldOrder {
		if fieldErr, ok := fieldErrs[field]; ok {
			return &InvalidConfigurationError{Field: field, Reason: fieldErr.Error()}
		}
	}
	return err
}

// Settings is the configuration echoed back in summaries
type Settings struct {
	Format      Format `json:"format"`
	DPI         int    `json:"dpi"`
	JPEGQuality *int   `json:"quality,omitempty"`
	SplitPages  bool   `json:"split_pages"`
	Transparent bool   `json:"alpha_channel"`
}

// Settings reports the options that actually took effect
func (o Options) Settings() Settings {
	s := Settings{
		Format:      o.Format,
		DPI:         o.DPI,
		SplitPages:  o.SplitPages,
		Transparent: o.Transparent,
	}
	if o.Format == FormatJPEG {
		q := o.JPEGQuality
		s.JPEGQuality = &q
	}
	return s
}
