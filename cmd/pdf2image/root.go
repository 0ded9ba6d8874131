package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	verbose bool
	noColor bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "pdf2image",
		Short: "Convert PDF documents to PNG or JPEG images",
		Long: `pdf2image rasterizes every page of one or more PDF documents into PNG or JPEG images.
Documents can be local files, http(s) URLs, s3://bucket/key references, or paths relative to
FILES_URL. Conversion runs locally, or on a pdf2image server with --server.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				color.NoColor = true
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newConvertCmd(flags))
	return rootCmd
}
