package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"sheetwright/internal/events"
	"sheetwright/internal/pipeline"
	"sheetwright/internal/session"
)

var (
	outputPath string
	reruns     int
	showScript bool
)

var runCmd = &cobra.Command{
	Use:   "run <file.xlsx>",
	Short: "Process one spreadsheet and write the edited copy",
	Long: `Reads the instruction in cell A1, generates a script, runs it and writes the
result next to the input (or to --output).

Examples:
  sheetwright run prices.xlsx
  sheetwright run prices.xlsx -o doubled.xlsx --show-script
  sheetwright run prices.xlsx --rerun 2`,
	Args: cobra.ExactArgs(1),
	RunE: runSpreadsheet,
}

func init() {
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Where to write the result (default: <name>_edited.xlsx beside the input)")
	runCmd.Flags().IntVar(&reruns, "rerun", 0, "Regenerate and rerun up to N more times after a failure")
	runCmd.Flags().BoolVar(&showScript, "show-script", false, "Print the generated script")
}

func runSpreadsheet(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !pipeline.AcceptsFile(path) {
		return fmt.Errorf("%s is not an .xlsx file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	printer := newPrinter(cmd.OutOrStdout(), showScript, sess.Pipeline.Logs)
	if err := processAndPrint(ctx, sess, pipeline.Upload{Name: filepath.Base(path), Data: data}, reruns, printer); err != nil {
		return err
	}

	art, ok := sess.Pipeline.Artifact()
	if !ok {
		return errors.New("the run finished without a result")
	}
	dest := outputPath
	if dest == "" {
		dest = filepath.Join(filepath.Dir(path), art.Name)
	}
	if err := os.WriteFile(dest, art.Data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	printer.Success(fmt.Sprintf("Wrote %s (%d generation(s) left today)", dest, sess.Usage.Remaining()))
	return nil
}

// processAndPrint processes up and reruns it up to reruns times while
// printer follows the run log.
func processAndPrint(ctx context.Context, sess *session.Session, up pipeline.Upload, reruns int, printer *printer) error {
	sub := sess.Bus.Subscribe(events.DefaultBuffer * 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		printer.Consume(sub.C)
	}()

	runErr := sess.Pipeline.Process(ctx, up)
	for attempt := 1; runErr != nil && attempt <= reruns; attempt++ {
		if !rerunnable(runErr) || ctx.Err() != nil {
			break
		}
		printer.Note(fmt.Sprintf("Rerun %d/%d", attempt, reruns))
		runErr = sess.Pipeline.Retry(ctx)
	}

	sub.Close()
	<-done

	if runErr != nil {
		if msg := sess.Pipeline.Snapshot().Error; msg != "" {
			return errors.New(msg)
		}
		return errors.New(pipeline.Describe(runErr))
	}
	return nil
}

// rerunnable reports whether another generation could change the outcome.
func rerunnable(err error) bool {
	switch {
	case errors.Is(err, pipeline.ErrQuotaExhausted),
		errors.Is(err, pipeline.ErrEmptyInstruction),
		errors.Is(err, pipeline.ErrNothingToRetry):
		return false
	}
	return true
}
