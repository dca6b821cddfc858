package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"qmk-keymap-preview/internal/app"
	"qmk-keymap-preview/internal/config"
	"qmk-keymap-preview/internal/filedoc"
)

var (
	serveAddr      string
	serveAssets    string
	serveNoBrowser bool
)

var serveCmd = &cobra.Command{
	Use:   "serve <keymap.c>",
	Short: "Preview a keymap file and write browser edits back to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		applyServeFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if !verbose {
			log.SetOutput(io.Discard)
		}

		doc, err := filedoc.Open(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cmd.ErrOrStderr(), *cfg, doc)
	},
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("addr") {
		cfg.Addr = serveAddr
	}
	if cmd.Flags().Changed("assets") {
		cfg.AssetDir = serveAssets
	}
	if serveNoBrowser {
		cfg.OpenBrowser = false
	}
}

// serve runs a preview of doc until ctx is done.
func serve(ctx context.Context, out io.Writer, cfg config.Config, doc *filedoc.Document) error {
	lp := app.NewLivePreview(cfg)
	defer func() {
		if err := lp.Stop(); err != nil {
			fmt.Fprintf(out, "Warning: %v\n", err)
		}
	}()

	session, err := lp.Open(doc)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Previewing %s at %s\n", doc.Path(), session.URL())

	if cfg.OpenBrowser {
		if err := app.OpenBrowser(cfg.BrowserCommand, session.URL()); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- doc.Watch(ctx, func() {
			lp.DocumentChanged(doc.URI())
		})
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-watchErr:
		if err != nil {
			return fmt.Errorf("watching %s: %w", doc.Path(), err)
		}
		return nil
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveAssets, "assets", "", "keymap editor bundle directory (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoBrowser, "no-browser", false, "do not open a browser")
	rootCmd.AddCommand(serveCmd)
}
