package downloader

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/example/ytfetch/internal/models"
)

// unsafeChars are stripped from titles before they become filenames.
const unsafeChars = `<>:"/\|?*`

// maxStemBytes leaves room for suffixes like ".source.mp3" under the usual
// 255-byte name limit.
const maxStemBytes = 200

// skippedExtensions mark yt-dlp work files that are never the final output.
var skippedExtensions = []string{".part", ".ytdl", ".temp"}

var videoIDPattern = regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11}).*`)

// SanitizeFilename strips filesystem-unsafe characters from name. Names that
// end up empty (or only dots) are replaced with fallback.
func SanitizeFilename(name, fallback string) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeChars, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	clean = strings.TrimSpace(clean)

	if strings.Trim(clean, ".") == "" {
		return fallback
	}
	return clean
}

// SanitizeStem turns a title into a filename stem: SanitizeFilename, then
// capped at maxStemBytes on a rune boundary.
func SanitizeStem(title, fallback string) string {
	return SanitizeFilename(truncate(SanitizeFilename(title, ""), maxStemBytes), fallback)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// VideoID extracts the 11-character YouTube id from url, falling back to the URL itself.
func VideoID(url string) string {
	if m := videoIDPattern.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	return url
}

// findOutput returns the file yt-dlp left in dir. When several candidates
// exist the largest wins.
func findOutput(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", dir, err)
	}

	var best string
	var bestSize int64 = -1
	for _, e := range entries {
		if e.IsDir() || isWorkFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(dir, e.Name())
			bestSize = info.Size()
		}
	}

	if best == "" {
		return "", fmt.Errorf("%w: downloaded file not found", models.ErrEngine)
	}
	return best, nil
}

func isWorkFile(name string) bool {
	ext := filepath.Ext(name)
	for _, skip := range skippedExtensions {
		if ext == skip {
			return true
		}
	}
	return false
}
