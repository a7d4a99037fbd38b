package models

import (
	"fmt"
	"strings"
)

// ContentType is the kind of media a caller wants back.
type ContentType string

const (
	ContentVideo ContentType = "video"
	ContentAudio ContentType = "audio"
)

// ParseContentType maps user input onto a ContentType. Empty input means video.
func ParseContentType(s string) (ContentType, error) {
	switch ContentType(strings.TrimSpace(s)) {
	case "", ContentVideo:
		return ContentVideo, nil
	case ContentAudio:
		return ContentAudio, nil
	default:
		return "", fmt.Errorf("%w: Invalid content_type", ErrInvalidInput)
	}
}

// MediaInfo is the subset of yt-dlp's JSON metadata we care about
type MediaInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	WebpageURL string  `json:"webpage_url"`
}

// FormatEntry describes one selectable format
type FormatEntry struct {
	Quality string `json:"quality"`
	Bitrate int    `json:"bitrate"`
	Size    int64  `json:"size"`
}

// FormatDescriptor is returned by /get-formats
type FormatDescriptor struct {
	Title       string                 `json:"title"`
	Duration    float64                `json:"duration"`
	Thumbnail   string                 `json:"thumbnail"`
	Formats     map[string]FormatEntry `json:"formats"`
	ContentType ContentType            `json:"content_type"`
}

// DownloadRequest represents the request payload for /get-formats and /download
type DownloadRequest struct {
	URL         string      `json:"url"`
	ContentType ContentType `json:"content_type"`
}

// Normalize trims the URL and fills in the default content type.
func (r *DownloadRequest) Normalize() {
	r.URL = strings.TrimSpace(r.URL)
	r.ContentType = ContentType(strings.TrimSpace(string(r.ContentType)))
	if r.ContentType == "" {
		r.ContentType = ContentVideo
	}
}

// Validate checks the request invariants. Call Normalize first.
func (r DownloadRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidInput)
	}
	if _, err := ParseContentType(string(r.ContentType)); err != nil {
		return err
	}
	return nil
}

// DownloadResult is the outcome of a fetch
type DownloadResult struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename,omitempty"`
	Filepath string `json:"filepath,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ThumbnailRequest represents the request payload for /download-thumbnail
type ThumbnailRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Normalize trims fields and defaults the title.
func (r *ThumbnailRequest) Normalize() {
	r.URL = strings.TrimSpace(r.URL)
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		r.Title = "thumbnail"
	}
}

// Validate checks the request invariants.
func (r ThumbnailRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidInput)
	}
	return nil
}

// Progress statuses
const (
	StatusDownloading = "downloading"
	StatusFinished    = "finished"
	StatusError       = "error"
)

// DownloadProgress represents the progress update sent via WebSocket
type DownloadProgress struct {
	VideoID string  `json:"video_id"`
	Status  string  `json:"status"` // "downloading", "finished", "error"
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}
