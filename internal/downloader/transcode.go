package downloader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// FFmpeg settings
const (
	FFmpegCommand = "ffmpeg"

	MP3Codec = "libmp3lame"

	VideoCodec        = "libx264"
	VideoPreset       = "medium"
	VideoCRF          = "23"
	VideoAudioCodec   = "aac"
	VideoAudioBitrate = "128k"
	FastStartFlag     = "+faststart"
)

// FFmpeg implements Transcoder by shelling out to ffmpeg.
type FFmpeg struct {
	path string
}

// NewFFmpeg returns a transcoder using the given binary name or path.
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = FFmpegCommand
	}
	return &FFmpeg{path: path}
}

// ToMP3 transcodes src to an MP3 at the given bitrate.
func (f *FFmpeg) ToMP3(ctx context.Context, src, dst, bitrate string) error {
	return f.run(ctx, dst, AudioArgs(src, dst, bitrate))
}

// ToMP4 converts src to an H.264/AAC MP4.
func (f *FFmpeg) ToMP4(ctx context.Context, src, dst string) error {
	return f.run(ctx, dst, VideoArgs(src, dst))
}

// AudioArgs builds the ffmpeg arguments for audio extraction.
func AudioArgs(src, dst, bitrate string) []string {
	return []string{
		"-y",
		"-i", src,
		"-vn",
		"-c:a", MP3Codec,
		"-b:a", bitrate,
		dst,
	}
}

// VideoArgs builds the ffmpeg arguments for MP4 conversion.
func VideoArgs(src, dst string) []string {
	return []string{
		"-y",
		"-i", src,
		"-c:v", VideoCodec,
		"-preset", VideoPreset,
		"-crf", VideoCRF,
		"-c:a", VideoAudioCodec,
		"-b:a", VideoAudioBitrate,
		"-movflags", FastStartFlag,
		dst,
	}
}

func (f *FFmpeg) run(ctx context.Context, dst string, args []string) error {
	bin, err := exec.LookPath(f.path)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// partial output is useless
		os.Remove(dst)
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
