// Package cli implements the ytfetch commands using Cobra.
package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/ytfetch/internal/config"
	"github.com/example/ytfetch/internal/downloader"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig      string
	flagDownloadDir string
	flagDebug       bool
)

// cfg holds the loaded configuration (merged: defaults < config file < env < flags).
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ytfetch",
	Short: "Download YouTube video and audio through yt-dlp",
	Long: `ytfetch wraps yt-dlp and ffmpeg behind a small HTTP API and CLI.
Audio is converted to MP3, video is delivered as MP4.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config.toml")
	rootCmd.PersistentFlags().StringVar(&flagDownloadDir, "download-dir", "", "Directory for finished downloads")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(thumbnailCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < env < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if flagDownloadDir != "" {
		cfg.DownloadDir = flagDownloadDir
	}
	if flagDebug {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.SetOutput(os.Stderr)
	if cfg.Debug {
		log.SetPrefix("[ytfetch] ")
	} else {
		log.SetFlags(0)
	}

	return nil
}

// debugf logs a message if debug mode is enabled.
func debugf(format string, args ...interface{}) {
	if cfg != nil && cfg.Debug {
		log.Printf(format, args...)
	}
}

func newFetcher() *downloader.Fetcher {
	f := downloader.NewFetcher(downloader.NewYtDlp(cfg.YtDlpPath), downloader.NewFFmpeg(cfg.FFmpegPath))
	f.SetAudioBitrate(cfg.AudioBitrate)
	return f
}

func downloadDir() (string, error) {
	return cfg.ExpandDownloadDir()
}
