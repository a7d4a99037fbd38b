// Package handlers exposes the fetcher over HTTP with gin and pushes progress
// over a websocket hub.
package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/ytfetch/internal/downloader"
	"github.com/example/ytfetch/internal/models"
	"github.com/example/ytfetch/internal/storage"
	"github.com/example/ytfetch/internal/thumbnail"
)

// MediaFetcher resolves metadata and downloads media.
type MediaFetcher interface {
	ResolveMetadata(ctx context.Context, req models.DownloadRequest) (*models.FormatDescriptor, error)
	Fetch(ctx context.Context, req models.DownloadRequest, dir string, progress downloader.ProgressFunc) (*models.DownloadResult, error)
}

// ThumbnailFetcher downloads thumbnails.
type ThumbnailFetcher interface {
	Fetch(ctx context.Context, req models.ThumbnailRequest) (*thumbnail.Image, error)
}

// Options configures a Handler.
type Options struct {
	Fetcher    MediaFetcher
	Thumbnails ThumbnailFetcher
	Store      *storage.Store
	Hub        *Hub

	// Inline returns files base64-encoded in the response body instead of
	// persisting them to Store.
	Inline bool

	// DownloadTimeout bounds a single fetch. Zero means no limit.
	DownloadTimeout time.Duration
}

// Handler serves the HTTP API.
type Handler struct {
	fetcher         MediaFetcher
	thumbs          ThumbnailFetcher
	store           *storage.Store
	hub             *Hub
	inline          bool
	downloadTimeout time.Duration
}

// New builds a Handler. A nil Hub gets a fresh one that nobody runs, so
// progress events are dropped.
func New(opts Options) *Handler {
	hub := opts.Hub
	if hub == nil {
		hub = NewHub()
	}
	return &Handler{
		fetcher:         opts.Fetcher,
		thumbs:          opts.Thumbnails,
		store:           opts.Store,
		hub:             hub,
		inline:          opts.Inline,
		downloadTimeout: opts.DownloadTimeout,
	}
}

// GetFormats handles POST /get-formats
func (h *Handler) GetFormats(c *gin.Context) {
	var req models.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	fd, err := h.fetcher.ResolveMetadata(c.Request.Context(), req)
	if err != nil {
		log.Println("Error fetching formats:", err)
		if errors.Is(err, models.ErrEngine) {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.Message(err)})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, fd)
}

// Download handles POST /download. The request blocks for the whole fetch.
func (h *Handler) Download(c *gin.Context) {
	var req models.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	if h.downloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.downloadTimeout)
		defer cancel()
	}

	dir := h.store.Dir()
	if h.inline {
		tmp, err := storage.NewTempDir("ytfetch-")
		if err != nil {
			writeError(c, err)
			return
		}
		defer tmp.Cleanup()
		dir = tmp.Path()
	}

	videoID := downloader.VideoID(req.URL)
	h.hub.Publish(models.DownloadProgress{VideoID: videoID, Status: models.StatusDownloading})

	res, err := h.fetcher.Fetch(ctx, req, dir, func(percent float64) {
		h.hub.Publish(models.DownloadProgress{VideoID: videoID, Status: models.StatusDownloading, Percent: percent})
	})
	if err != nil {
		log.Printf("Download failed for %s: %v", req.URL, err)
		h.hub.Publish(models.DownloadProgress{VideoID: videoID, Status: models.StatusError, Message: models.Message(err)})
		c.JSON(http.StatusInternalServerError, models.DownloadResult{Success: false, Error: models.Message(err)})
		return
	}
	h.hub.Publish(models.DownloadProgress{VideoID: videoID, Status: models.StatusFinished, Percent: 100})

	if h.inline {
		data, err := os.ReadFile(res.Filepath)
		if err != nil {
			writeError(c, fmt.Errorf("reading %s: %w", res.Filename, err))
			return
		}
		writeInline(c, res.Filename, mediaType(req.ContentType), data)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Download completed",
		"filename": res.Filename,
	})
}

// DownloadFile handles GET /download-file/:filename
func (h *Handler) DownloadFile(c *gin.Context) {
	path, _, err := h.store.Open(c.Param("filename"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// DownloadThumbnail handles POST /download-thumbnail
func (h *Handler) DownloadThumbnail(c *gin.Context) {
	var req models.ThumbnailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	img, err := h.thumbs.Fetch(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	if h.inline {
		writeInline(c, img.Filename, "image/jpeg", img.Data)
		return
	}

	path, err := h.store.WriteFile(img.Filename, img.Data)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DownloadResult{
		Success:  true,
		Filename: filepath.Base(path),
		Filepath: path,
	})
}

func mediaType(ct models.ContentType) string {
	if ct == models.ContentAudio {
		return "audio/mpeg"
	}
	return "video/mp4"
}

func writeInline(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Transfer-Encoding", "base64")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Data(http.StatusOK, contentType, []byte(base64.StdEncoding.EncodeToString(data)))
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrUpstream):
		c.JSON(http.StatusBadRequest, gin.H{"error": models.Message(err)})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": models.Message(err)})
	default:
		log.Println("Request failed:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": models.Message(err)})
	}
}
