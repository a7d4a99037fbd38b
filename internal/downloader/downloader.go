package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/example/ytfetch/internal/models"
)

// Format selectors and transcode targets.
const (
	AudioSelector       = "bestaudio/best"
	VideoSelector       = "bestvideo+bestaudio/best"
	DefaultAudioBitrate = "192k"

	// StagingPrefix names the per-fetch work directories created inside the target dir.
	StagingPrefix = ".fetch-"

	bestAudioLabel = "Best Available Audio"
	unknownTitle   = "Unknown"
	defaultStem    = "download"
)

// Fetcher resolves metadata and performs downloads through an Engine,
// transcoding the result with a Transcoder.
type Fetcher struct {
	engine       Engine
	transcoder   Transcoder
	audioBitrate string
}

// NewFetcher creates a fetcher
func NewFetcher(engine Engine, transcoder Transcoder) *Fetcher {
	return &Fetcher{
		engine:       engine,
		transcoder:   transcoder,
		audioBitrate: DefaultAudioBitrate,
	}
}

// SetAudioBitrate overrides the MP3 bitrate; empty keeps the default.
func (f *Fetcher) SetAudioBitrate(bitrate string) {
	if bitrate != "" {
		f.audioBitrate = bitrate
	}
}

// Info returns raw engine metadata for url.
func (f *Fetcher) Info(ctx context.Context, url string) (*models.MediaInfo, error) {
	info, err := f.engine.Extract(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEngine, err)
	}
	return info, nil
}

// ResolveMetadata queries the engine without downloading. Audio requests get a
// single synthetic "bestaudio/best" entry; video requests get an empty format
// map since the best format is always auto-selected.
func (f *Fetcher) ResolveMetadata(ctx context.Context, req models.DownloadRequest) (*models.FormatDescriptor, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	info, err := f.Info(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	title := info.Title
	if title == "" {
		title = unknownTitle
	}

	fd := &models.FormatDescriptor{
		Title:       title,
		Duration:    info.Duration,
		Thumbnail:   info.Thumbnail,
		Formats:     map[string]models.FormatEntry{},
		ContentType: req.ContentType,
	}
	if req.ContentType == models.ContentAudio {
		fd.Formats[AudioSelector] = models.FormatEntry{Quality: bestAudioLabel}
	}
	return fd, nil
}

// Fetch downloads req into dir. Audio is transcoded to MP3, video ends up as
// MP4. The filename is the sanitized title, so a later download with the same
// title overwrites an earlier one.
func (f *Fetcher) Fetch(ctx context.Context, req models.DownloadRequest, dir string, progress ProgressFunc) (*models.DownloadResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	info, err := f.Info(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	stem := SanitizeStem(info.Title, defaultStem)

	// yt-dlp works in its own staging dir so leftovers from earlier runs are never picked up
	stage, err := os.MkdirTemp(dir, StagingPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	opts := DownloadOptions{
		OutputTemplate: filepath.Join(stage, stem+".%(ext)s"),
		Progress:       progress,
	}
	if req.ContentType == models.ContentAudio {
		opts.Format = AudioSelector
	} else {
		opts.Format = VideoSelector
		opts.MergeFormat = "mp4"
	}

	if err := f.engine.Download(ctx, req.URL, opts); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEngine, err)
	}

	src, err := findOutput(stage)
	if err != nil {
		return nil, err
	}

	var name string
	if req.ContentType == models.ContentAudio {
		name, err = f.finishAudio(ctx, src, stage, stem)
	} else {
		name, err = f.finishVideo(ctx, src, stage, stem)
	}
	if err != nil {
		return nil, err
	}

	final := filepath.Join(dir, name)
	if err := os.Rename(filepath.Join(stage, name), final); err != nil {
		return nil, fmt.Errorf("moving %s into place: %w", name, err)
	}
	// retention counts from completion, not from the upstream Last-Modified
	now := time.Now()
	if err := os.Chtimes(final, now, now); err != nil {
		return nil, fmt.Errorf("touching %s: %w", name, err)
	}

	return &models.DownloadResult{
		Success:  true,
		Filename: name,
		Filepath: final,
	}, nil
}

func (f *Fetcher) finishAudio(ctx context.Context, src, stage, stem string) (string, error) {
	name := stem + ".mp3"
	out := filepath.Join(stage, name)
	if src == out {
		// the source is already an mp3; transcode next to it so ffmpeg never reads and writes one file
		moved := filepath.Join(stage, stem+".source.mp3")
		if err := os.Rename(src, moved); err != nil {
			return "", fmt.Errorf("staging source: %w", err)
		}
		src = moved
	}
	if err := f.transcoder.ToMP3(ctx, src, out, f.audioBitrate); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrEngine, err)
	}
	return name, nil
}

func (f *Fetcher) finishVideo(ctx context.Context, src, stage, stem string) (string, error) {
	name := stem + ".mp4"
	if filepath.Ext(src) == ".mp4" {
		if err := os.Rename(src, filepath.Join(stage, name)); err != nil {
			return "", fmt.Errorf("staging output: %w", err)
		}
		return name, nil
	}
	if err := f.transcoder.ToMP4(ctx, src, filepath.Join(stage, name)); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrEngine, err)
	}
	return name, nil
}
