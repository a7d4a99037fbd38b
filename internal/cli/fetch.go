package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/ytfetch/internal/models"
	"github.com/example/ytfetch/internal/storage"
	"github.com/example/ytfetch/internal/thumbnail"
)

var (
	flagAudio  bool
	flagOutput string
	flagTitle  string
)

var formatsCmd = &cobra.Command{
	Use:   "formats <url>",
	Short: "Print the available formats for a URL as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  formatsRun,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a video (MP4) or its audio (MP3)",
	Args:  cobra.ExactArgs(1),
	RunE:  fetchRun,
}

var thumbnailCmd = &cobra.Command{
	Use:   "thumbnail <url>",
	Short: "Save a video's thumbnail as JPEG",
	Args:  cobra.ExactArgs(1),
	RunE:  thumbnailRun,
}

func init() {
	formatsCmd.Flags().BoolVarP(&flagAudio, "audio", "a", false, "Audio instead of video")
	fetchCmd.Flags().BoolVarP(&flagAudio, "audio", "a", false, "Download audio as MP3")
	fetchCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output directory (default: download_dir)")
	thumbnailCmd.Flags().StringVarP(&flagTitle, "title", "t", "", "File name for the thumbnail")
	thumbnailCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output directory (default: download_dir)")
}

func contentType() models.ContentType {
	if flagAudio {
		return models.ContentAudio
	}
	return models.ContentVideo
}

func outputDir() (string, error) {
	if flagOutput != "" {
		return flagOutput, nil
	}
	return downloadDir()
}

func formatsRun(cmd *cobra.Command, args []string) error {
	fd, err := newFetcher().ResolveMetadata(cmd.Context(), models.DownloadRequest{URL: args[0], ContentType: contentType()})
	if err != nil {
		return fmt.Errorf("resolving formats: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(fd)
}

func fetchRun(cmd *cobra.Command, args []string) error {
	dir, err := outputDir()
	if err != nil {
		return err
	}

	debugf("fetching %s as %s into %s", args[0], contentType(), dir)
	res, err := newFetcher().Fetch(cmd.Context(), models.DownloadRequest{URL: args[0], ContentType: contentType()}, dir, func(percent float64) {
		fmt.Fprintf(os.Stderr, "\r%5.1f%%", percent)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Filepath)
	return nil
}

func thumbnailRun(cmd *cobra.Command, args []string) error {
	dir, err := outputDir()
	if err != nil {
		return err
	}
	store, err := storage.New(dir)
	if err != nil {
		return err
	}

	thumbs := thumbnail.NewFetcher(newFetcher(), cfg.ThumbnailTimeout.Duration)
	img, err := thumbs.Fetch(cmd.Context(), models.ThumbnailRequest{URL: args[0], Title: flagTitle})
	if err != nil {
		return fmt.Errorf("thumbnail: %w", err)
	}

	path, err := store.WriteFile(img.Filename, img.Data)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
