package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	cfg "github.com/feichai0017/sheetscan/config"
	"github.com/feichai0017/sheetscan/internal/bootstrap"
	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/progress"
	"github.com/feichai0017/sheetscan/pkg/source"
)

var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "Process local files into one workbook",
	Example: `  # One receipt, English analysis
  sheetscan process receipt.jpg -o receipt.xlsx

  # Several scans, Indonesian analysis, summary as JSON on stdout
  sheetscan process a.png b.pdf --lang id --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringP("lang", "l", "en", "Analysis language (en or id)")
	processCmd.Flags().StringP("out", "o", "result.xlsx", "Workbook output path")
	processCmd.Flags().Bool("json", false, "Print rows and analysis as JSON")
	processCmd.Flags().Bool("quiet", false, "Do not print progress")
}

type fileSummary struct {
	FileName string                `json:"fileName"`
	Rows     models.TableData      `json:"rows"`
	HasTable bool                  `json:"hasTable"`
	Analysis models.AnalysisResult `json:"analysis"`
}

func runProcess(cmd *cobra.Command, args []string) error {
	langFlag, _ := cmd.Flags().GetString("lang")
	out, _ := cmd.Flags().GetString("out")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	quiet, _ := cmd.Flags().GetBool("quiet")

	lang, err := models.ParseLanguage(langFlag)
	if err != nil {
		return err
	}

	app := cfg.GetAppConfig()
	app.LogEncoding = "console"
	if app.LogLevel == "info" {
		app.LogLevel = "warn"
	}
	log, err := bootstrap.NewLogger(app, "sheetscan", "")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := bootstrap.NewPipeline(ctx, app, cfg.GetAIConfig(), log)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	srcs := make([]source.Source, len(args))
	for i, path := range args {
		srcs[i] = source.FromFile(path)
	}

	var sink progress.Sink
	if !quiet {
		sink = progress.SinkFunc(func(percent int, stage progress.Stage) {
			fmt.Fprintf(cmd.ErrOrStderr(), "[%3d%%] %s\n", percent, stage)
		})
	}

	result, err := pipeline.Orchestrator.ProcessBatch(ctx, srcs, lang, sink)
	if err != nil {
		return err
	}
	for _, f := range result.Failures {
		log.Warn("File failed", logger.String("file", f.FileName), logger.String("error", f.Error))
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %s\n", f.FileName, f.Error)
	}

	if len(result.SpreadsheetBuffer) > 0 {
		if err := os.WriteFile(out, result.SpreadsheetBuffer, 0o644); err != nil {
			return fmt.Errorf("failed to write workbook: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
	}

	if jsonOutput {
		summaries := make([]fileSummary, 0, len(result.Documents))
		for _, doc := range result.Documents {
			summaries = append(summaries, fileSummary{
				FileName: doc.FileName,
				Rows:     doc.Rows,
				HasTable: doc.HasTable,
				Analysis: doc.Analysis,
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}
	return nil
}
