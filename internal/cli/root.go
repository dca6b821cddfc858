package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"qmk-keymap-preview/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "qmk-keymap-preview",
	Short: "Live browser preview for QMK keymap.c files",
	Long: `qmk-keymap-preview serves the keymap editor bundle for a keymap.c file and
keeps the two in step: edits to the file show up in the browser, and edits
made in the browser are written back to the file.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log HTTP and sync activity")
}
