package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// FormatSize renders a byte count with binary units, e.g. "1.5 MiB".
func FormatSize(bytes float64) string {
	if bytes <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatSpeed renders a transfer rate in bytes per second.
func FormatSpeed(bytesPerSec float64) string {
	return FormatSize(bytesPerSec) + "/s"
}

// ToHMS renders a duration in seconds as hh:mm:ss. Negative values mean unknown.
func ToHMS(seconds int64) string {
	if seconds < 0 {
		return ""
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// CheckAndMakeDir ensures dir exists, creating it if necessary.
func CheckAndMakeDir(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			log.Errorf("Path exists but is not a directory: %s", dir)
			return false
		}
		return true
	}
	if !os.IsNotExist(err) {
		log.WithError(err).Errorf("Error checking directory %s", dir)
		return false
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}

// SanitizeFileName strips directory components and characters that are not
// allowed in file names on common platforms.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '|', '?', '*':
			return '_'
		}
		if r < 32 {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}

// StringSliceContains reports whether slice contains item, ignoring case.
func StringSliceContains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

// TruncateString truncates a string to maxLen characters, adding "..." if truncated
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
