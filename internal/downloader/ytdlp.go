package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/example/ytfetch/internal/models"
)

const progressInterval = 500 * time.Millisecond

// localExecutable is picked up when present next to the binary.
const localExecutable = "./yt-dlp.exe"

// YtDlp implements Engine on top of the yt-dlp CLI.
type YtDlp struct {
	executable string
}

// NewYtDlp returns an engine using the given yt-dlp binary. An empty path
// falls back to a local yt-dlp.exe, then to whatever go-ytdlp resolves from PATH.
func NewYtDlp(executable string) *YtDlp {
	if executable == "" {
		if _, err := os.Stat(localExecutable); err == nil {
			executable = localExecutable
		}
	}
	return &YtDlp{executable: executable}
}

func (y *YtDlp) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		NoPlaylist()
	if y.executable != "" {
		cmd.SetExecutable(y.executable)
	}
	return cmd
}

// Extract runs yt-dlp with --dump-single-json and decodes the result.
func (y *YtDlp) Extract(ctx context.Context, url string) (*models.MediaInfo, error) {
	res, err := y.command().DumpSingleJSON().Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("running yt-dlp: %w", err)
	}

	var info models.MediaInfo
	if err := json.Unmarshal([]byte(res.Stdout), &info); err != nil {
		return nil, fmt.Errorf("parsing yt-dlp metadata: %w", err)
	}
	return &info, nil
}

// Download runs yt-dlp with a fixed format selector and output template.
func (y *YtDlp) Download(ctx context.Context, url string, opts DownloadOptions) error {
	cmd := y.command().
		Format(opts.Format).
		Output(opts.OutputTemplate).
		ForceOverwrites().
		NoMtime()
	if opts.MergeFormat != "" {
		cmd.MergeOutputFormat(opts.MergeFormat)
	}

	if opts.Progress != nil {
		cmd.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			if p, ok := percentOf(update); ok {
				opts.Progress(p)
			}
		})
	}

	if _, err := cmd.Run(ctx, url); err != nil {
		return fmt.Errorf("running yt-dlp: %w", err)
	}
	return nil
}

// percentOf converts a byte-count update into a percentage. Updates without a
// known total are skipped.
func percentOf(update ytdlp.ProgressUpdate) (float64, bool) {
	if update.TotalBytes <= 0 {
		return 0, false
	}
	p := float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
	if p > 100 {
		p = 100
	}
	return p, true
}
