package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	config "github.com/drummonds/pdf2image/config"
	engine "github.com/drummonds/pdf2image/engine"
	"github.com/drummonds/pdf2image/engine/converter"
	"github.com/drummonds/pdf2image/engine/fileresolver"
	"github.com/drummonds/pdf2image/engine/pdfrenderer"
)

type convertFlags struct {
	format      string
	dpi         int
	quality     int
	split       bool
	transparent bool
	output      string
	server      string
	renderer    string
}

// outputFile is one image ready to be written, from either conversion mode
type outputFile struct {
	name string
	data []byte
}

func newConvertCmd(global *globalFlags) *cobra.Command {
	flags := &convertFlags{}
	cmd := &cobra.Command{
		Use:   "convert <pdf|url>...",
		Short: "Convert PDF files or URLs to images",
		Example: `  pdf2image convert report.pdf
  pdf2image convert --format jpeg --quality 80 --dpi 300 -o out/ a.pdf b.pdf
  pdf2image convert --split=false https://example.com/brochure.pdf
  pdf2image convert --server http://localhost:8000 report.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), cmd.OutOrStdout(), global, flags, args)
		},
	}
	cmd.Flags().StringVar(&flags.format, "format", "png", "output format: png or jpeg")
	cmd.Flags().IntVar(&flags.dpi, "dpi", converter.DefaultDPI, "resolution from 72 to 600")
	cmd.Flags().IntVar(&flags.quality, "quality", converter.DefaultJPEGQuality, "JPEG quality from 1 to 100")
	cmd.Flags().BoolVar(&flags.split, "split", true, "write one image per page; false stitches all pages into one image")
	cmd.Flags().BoolVar(&flags.transparent, "transparent", false, "make the white page background transparent (png only)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", ".", "directory for the generated images")
	cmd.Flags().StringVar(&flags.server, "server", "", "convert on a running pdf2image server instead of locally")
	cmd.Flags().StringVar(&flags.renderer, "renderer", "", "local renderer: fitz or pdfium (default from PDF_RENDERER)")
	return cmd
}

func (flags *convertFlags) options() (converter.Options, error) {
	format, err := converter.ParseFormat(flags.format)
	if err != nil {
		return converter.Options{}, err
	}
	opts := converter.Options{
		Format:      format,
		DPI:         flags.dpi,
		SplitPages:  flags.split,
		JPEGQuality: flags.quality,
		Transparent: flags.transparent,
	}
	return opts, opts.Validate()
}

func runConvert(ctx context.Context, out io.Writer, global *globalFlags, flags *convertFlags, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts, err := flags.options()
	if err != nil {
		return err
	}

	serverConfig, logger := config.SetupCLI(global.verbose)
	config.Logger = logger
	engine.Logger = logger

	var files []outputFile
	var messages []string
	if flags.server != "" {
		files, messages, err = convertRemote(ctx, flags.server, args, opts)
	} else {
		if flags.renderer != "" {
			serverConfig.Renderer = flags.renderer
		}
		files, messages, err = convertLocal(ctx, serverConfig, args, opts)
	}
	if err != nil {
		return err
	}

	paths, err := writeOutputs(flags.output, files)
	if err != nil {
		return err
	}
	printMessages(out, messages)
	for i, path := range paths {
		fmt.Fprintf(out, "  %s %s\n", path, color.New(color.Faint).Sprint(humanize.Bytes(uint64(len(files[i].data)))))
	}
	return nil
}

func convertLocal(ctx context.Context, serverConfig config.ServerConfig, args []string, opts converter.Options) ([]outputFile, []string, error) {
	renderer, err := pdfrenderer.NewRenderer(serverConfig.Renderer, serverConfig.MaxParallelFiles)
	if err != nil {
		return nil, nil, err
	}
	defer renderer.Close()

	service, err := engine.NewService(serverConfig, renderer)
	if err != nil {
		return nil, nil, err
	}

	refs := make([]fileresolver.FileRef, 0, len(args))
	for _, arg := range args {
		if engine.IsRemoteInput(arg) {
			refs = append(refs, fileresolver.FileRef{URL: arg})
			continue
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to read %s: %w", arg, err)
		}
		refs = append(refs, fileresolver.FileRef{Filename: filepath.Base(arg), Data: data})
	}

	batch, err := service.ConvertBatch(ctx, engine.BatchRequest{Files: refs, Options: opts})
	if err != nil {
		return nil, nil, err
	}
	var files []outputFile
	for _, page := range batch.Images() {
		files = append(files, outputFile{name: page.Filename, data: page.Data})
	}
	return files, batch.Messages, nil
}

func convertRemote(ctx context.Context, server string, args []string, opts converter.Options) ([]outputFile, []string, error) {
	response, err := engine.NewClient(server).Convert(ctx, args, opts)
	if err != nil {
		return nil, nil, err
	}
	var files []outputFile
	for _, blob := range response.Images {
		data, err := blob.Decode()
		if err != nil {
			return nil, nil, fmt.Errorf("invalid image data for %s: %w", blob.Filename, err)
		}
		files = append(files, outputFile{name: blob.Filename, data: data})
	}
	var messages []string
	if response.BatchResult != nil {
		messages = response.Messages
	}
	return files, messages, nil
}

// writeOutputs writes files into dir and returns the paths used. Inputs sharing a base name,
// like a/report.pdf and b/report.pdf, get a numeric suffix instead of overwriting each other.
func writeOutputs(dir string, files []outputFile) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create output directory: %w", err)
	}
	used := make(map[string]bool, len(files))
	paths := make([]string, 0, len(files))
	for _, file := range files {
		path := filepath.Join(dir, uniqueName(filepath.Base(file.name), used))
		if err := os.WriteFile(path, file.data, 0644); err != nil {
			return nil, fmt.Errorf("unable to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func uniqueName(name string, used map[string]bool) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	used[candidate] = true
	return candidate
}

func printMessages(out io.Writer, messages []string) {
	success := color.New(color.FgGreen)
	failure := color.New(color.FgRed)
	summary := color.New(color.FgCyan, color.Bold)
	for _, message := range messages {
		switch {
		case strings.HasPrefix(message, "✅"):
			success.Fprintln(out, message)
		case strings.HasPrefix(message, "❌"):
			failure.Fprintln(out, message)
		default:
			summary.Fprintln(out, message)
		}
	}
}
