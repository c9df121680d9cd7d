// Package paths decides which folder a new download is saved to.
package paths

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/JaymoCodes/xdm/internal/helpers"
	"github.com/JaymoCodes/xdm/internal/models"
)

// Download categories, matched on the file extension.
const (
	CategoryCompressed = "Compressed"
	CategoryDocuments  = "Documents"
	CategoryMusic      = "Music"
	CategoryPrograms   = "Programs"
	CategoryVideo      = "Video"
	CategoryOther      = "Other"
)

var categoryExtensions = map[string][]string{
	CategoryCompressed: {".zip", ".rar", ".7z", ".gz", ".tgz", ".bz2", ".xz", ".tar", ".iso", ".zst"},
	CategoryDocuments:  {".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".rtf", ".odt", ".epub"},
	CategoryMusic:      {".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a", ".wma", ".opus"},
	CategoryPrograms:   {".exe", ".msi", ".deb", ".rpm", ".dmg", ".pkg", ".apk", ".appimage", ".bin"},
	CategoryVideo:      {".mp4", ".mkv", ".avi", ".mov", ".webm", ".flv", ".wmv", ".m4v", ".ts", ".m3u8", ".mpd"},
}

var allowedTags = map[string]struct{}{
	"category": {},
	"host":     {},
	"kind":     {},
	"year":     {},
	"month":    {},
}

// Regex to find tags like {tagName}
var tagRegex = regexp.MustCompile(`\{([^}]+)\}`)

var separators = strings.NewReplacer("/", "_", "\\", "_")

// Category returns the category of a file name. Torrents and streams fall
// back on their kind when the name says nothing.
func Category(fileName, kind string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	for category, exts := range categoryExtensions {
		for _, e := range exts {
			if ext == e {
				return category
			}
		}
	}
	switch kind {
	case models.KindHLS, models.KindDash:
		return CategoryVideo
	}
	return CategoryOther
}

// GeneratePath substitutes placeholders in a pattern string with sanitized values from the data map.
// It returns the generated relative path string or an error if substitution fails.
func GeneratePath(pattern string, data map[string]string) (string, error) {
	generatedPath := pattern

	for _, match := range tagRegex.FindAllStringSubmatch(pattern, -1) {
		tagName := match[1]
		tagWithBraces := match[0]

		if _, allowed := allowedTags[tagName]; !allowed {
			return "", fmt.Errorf("unknown tag found in path pattern: %s", tagWithBraces)
		}

		value := helpers.SanitizeFileName(separators.Replace(data[tagName]))
		if value == "" {
			value = "empty_" + tagName
		}
		generatedPath = strings.ReplaceAll(generatedPath, tagWithBraces, value)
	}

	cleanedPath := filepath.Clean(generatedPath)
	if cleanedPath == "." || cleanedPath == "" {
		return "", fmt.Errorf("generated path pattern resulted in an empty or invalid path: '%s'", pattern)
	}
	cleanedPath = strings.TrimPrefix(cleanedPath, string(filepath.Separator))

	for _, part := range strings.Split(cleanedPath, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("generated path contains invalid sequence '..': %s", cleanedPath)
		}
	}
	return cleanedPath, nil
}

// Data returns the tag values for e.
func Data(e models.DownloadEntry, now time.Time) map[string]string {
	data := map[string]string{
		"category": Category(e.Name, e.DownloadType),
		"kind":     e.DownloadType,
		"year":     now.Format("2006"),
		"month":    now.Format("01"),
	}
	if u, err := url.Parse(e.PrimaryURL); err == nil {
		data["host"] = u.Hostname()
	}
	return data
}

// TargetDir returns root joined with pattern expanded for e. An empty
// pattern means root itself.
func TargetDir(root, pattern string, e models.DownloadEntry, now time.Time) (string, error) {
	if strings.TrimSpace(pattern) == "" {
		return root, nil
	}
	rel, err := GeneratePath(pattern, Data(e, now))
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}
