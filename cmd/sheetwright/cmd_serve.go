package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sheetwright/internal/server"
	"sheetwright/internal/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload/download HTTP API",
	Long: `Starts an HTTP server for one session:

  POST /api/upload     multipart "file", starts a run (202, or 409 while busy)
  POST /api/retry      regenerate after a failure
  GET  /api/status     current state
  GET  /api/logs       run log
  GET  /api/events     server-sent events
  GET  /api/download   the edited workbook
  GET  /api/quota      generations left today
  GET  /api/template   a starter workbook
  GET  /healthz`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sess, err := session.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer sess.Close()

		return server.New(sess).Run(ctx, serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr from config)")
}
