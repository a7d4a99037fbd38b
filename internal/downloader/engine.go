// Package downloader implements the media fetch pipeline: metadata lookup and
// downloads through yt-dlp, followed by an ffmpeg transcode where the requested
// container differs from what the engine produced.
package downloader

import (
	"context"

	"github.com/example/ytfetch/internal/models"
)

// ProgressFunc receives download completion in percent (0-100).
type ProgressFunc func(percent float64)

// DownloadOptions configures a single engine download.
type DownloadOptions struct {
	// Format is the yt-dlp format selector, e.g. "bestaudio/best".
	Format string
	// OutputTemplate is a yt-dlp output template; it must end in ".%(ext)s".
	OutputTemplate string
	// MergeFormat is the container used when separate streams are merged.
	MergeFormat string
	Progress    ProgressFunc
}

// Engine is the external extraction engine.
type Engine interface {
	// Extract returns metadata for url without downloading anything.
	Extract(ctx context.Context, url string) (*models.MediaInfo, error)
	// Download fetches url according to opts.
	Download(ctx context.Context, url string, opts DownloadOptions) error
}

// Transcoder is the external transcoding binary.
type Transcoder interface {
	// ToMP3 extracts the audio of src into an MP3 at dst with the given bitrate (e.g. "192k").
	ToMP3(ctx context.Context, src, dst, bitrate string) error
	// ToMP4 converts src into an MP4 container at dst.
	ToMP4(ctx context.Context, src, dst string) error
}
