package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "sheetscan",
	Short: "Turn scanned documents into spreadsheets",
	Long: `sheetscan recognizes text in images and PDFs, infers tables from the
recognized lines, summarizes the content and writes everything to an xlsx workbook.

Providers are selected with OCR_PROVIDER and TEXT_PROVIDER, as for the server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
