package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/fatal"
)

const version = "0.4.0"

// Exit codes
const (
	ExitOK    = 0
	ExitError = 1
	ExitPanic = 2
)

var (
	logLevel    string
	imageDir    string
	imageName   string
	versionFlag bool
	rootCmd     *cobra.Command
)

// buildTimestamp prefers the VCS commit time recorded by the toolchain and
// falls back to the executable's mtime.
func buildTimestamp() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, kv := range info.Settings {
			if kv.Key != "vcs.time" {
				continue
			}
			if t, err := time.Parse(time.RFC3339, kv.Value); err == nil {
				return t.UTC().Format(time.RFC3339)
			}
		}
	}
	if exe, err := os.Executable(); err == nil {
		if fi, err := os.Stat(exe); err == nil {
			return fi.ModTime().UTC().Format(time.RFC3339)
		}
	}
	return "unknown"
}

func init() {
	rootCmd = &cobra.Command{
		Use:           "cartfriend",
		Short:         "Manage settings and save slots of a multi-boot flash cartridge image",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if versionFlag {
				printVersion(cmd)
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&imageDir, "image-dir", "", "Directory holding cartridge images (defaults to $CARTFRIEND_HOME)")
	rootCmd.PersistentFlags().StringVarP(&imageName, "image", "i", "default", "Name of the cartridge image")
	rootCmd.Flags().BoolVarP(&versionFlag, "version", "V", false, "Show version information")
}

func printVersion(cmd *cobra.Command) {
	fmt.Fprintf(cmd.OutOrStdout(), "cartfriend %s\n", version)
	fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", buildTimestamp())
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			debug.PrintStack()
			os.Exit(ExitPanic)
		}
	}()

	// A critical error stops everything before the image is flushed.
	defer fatal.Recover(func(e *fatal.Error) {
		fatal.Render(os.Stderr, e)
		os.Exit(fatal.ExitHalted)
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(ExitError)
	}
}
