package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coreterm/termcast"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "termcastd",
		Short: "Browser-accessible terminal streaming daemon",
		RunE:  run,
	}

	flags := cmd.Flags()
	flags.String("addr", termcast.DefaultListenAddr, "HTTP listen address")
	flags.String("shell", termcast.DefaultShell, "shell to spawn inside the PTY")
	flags.Int("rows", termcast.DefaultRows, "initial terminal rows")
	flags.Int("cols", termcast.DefaultCols, "initial terminal cols")
	flags.Int("scrollback", termcast.DefaultScrollback, "scrollback lines preserved by the trimmer")
	flags.String("cast-path", termcast.DefaultCastPath, "transcript output file")
	flags.String("heartbeat-path", termcast.DefaultHeartbeatPath, "heartbeat sidecar file")
	flags.Bool("verbose-log", false, "enable verbose cast telemetry")
	flags.Duration("verbose-interval", termcast.DefaultVerboseInterval, "verbose telemetry flush interval")
	flags.String("log-level", termcast.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.String("static-dir", "./static", "directory of viewer static assets")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	addr, _ := flags.GetString("addr")
	shell, _ := flags.GetString("shell")
	rows, _ := flags.GetInt("rows")
	cols, _ := flags.GetInt("cols")
	scrollback, _ := flags.GetInt("scrollback")
	castPath, _ := flags.GetString("cast-path")
	hbPath, _ := flags.GetString("heartbeat-path")
	verboseLog, _ := flags.GetBool("verbose-log")
	verboseInterval, _ := flags.GetDuration("verbose-interval")
	logLevel, _ := flags.GetString("log-level")
	staticDir, _ := flags.GetString("static-dir")

	opts := []termcast.Option{
		termcast.WithRows(rows),
		termcast.WithCols(cols),
		termcast.WithScrollback(scrollback),
		termcast.WithCastPath(castPath),
		termcast.WithHeartbeatPath(hbPath),
		termcast.WithShell(shell),
	}
	if verboseLog {
		opts = append(opts, termcast.WithVerboseLog(verboseInterval))
	}
	cfg := termcast.LoadConfig(opts...)
	cfg.ListenAddr = addr
	cfg.LogLevel = logLevel

	termcast.InitLog(os.Stdout, cfg.LogLevel, strings.EqualFold(cfg.LogLevel, "json"))

	pty, err := termcast.StartPTY(cfg.Shell, cfg.ShellArgs, cfg.Rows, cfg.Cols, termcast.DefaultHistoryCap)
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}
	defer pty.Close()

	tr, err := termcast.NewTranscript(cfg, os.Stdout)
	if err != nil {
		return fmt.Errorf("start transcript: %w", err)
	}
	defer tr.Close()

	srv := newServer(pty, tr, cfg, staticDir)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		termcast.Log.Info("termcastd listening", "addr", cfg.ListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		termcast.Log.Info("shutting down")
		return httpSrv.Close()
	case err := <-errCh:
		return err
	}
}
