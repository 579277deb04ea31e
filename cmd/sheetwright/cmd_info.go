package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sheetwright/internal/config"
	"sheetwright/internal/session"
	"sheetwright/internal/workbook"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show how many generations are left today",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := session.New(context.Background(), cfg)
		if err != nil {
			return err
		}
		defer sess.Close()

		rec := sess.Usage.Snapshot()
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d generations left today (%d used on %s)\n",
			sess.Usage.Remaining(), sess.Usage.Limit(), rec.Count, rec.Day)
		if err := sess.Usage.LastError(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: usage could not be persisted: %v\n", err)
		}
		return nil
	},
}

var templateCmd = &cobra.Command{
	Use:   "template <out.xlsx>",
	Short: "Write a starter workbook with an instruction placeholder in A1",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		placeholder := config.DefaultPlaceholder
		if p := cfg.Pipeline.Placeholders; len(p) > 0 {
			placeholder = p[0]
		}
		data, err := workbook.Template(placeholder)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return fmt.Errorf("write template: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s. Replace the text in A1 with your instruction.\n", args[0])
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		v := version
		if v == "" {
			v = cfg.Version
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cfg.Name, v)
	},
}
