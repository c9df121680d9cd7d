package models

import (
	"time"
)

// Status is the lifecycle state of an in-progress download.
type Status string

const (
	StatusStopped Status = "Stopped"
	StatusActive  Status = "Active"
	StatusPaused  Status = "Paused"
	StatusFailed  Status = "Failed"
)

// IsActive reports whether the engine currently owns execution of the download.
func (s Status) IsActive() bool {
	return s == StatusActive
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusStopped, StatusActive, StatusPaused, StatusFailed:
		return true
	}
	return false
}

// View is one of the two mutually exclusive display modes.
type View int

const (
	ViewInProgress View = iota
	ViewFinished
)

func (v View) String() string {
	if v == ViewFinished {
		return "finished"
	}
	return "in-progress"
}

// Download kinds. The engine decides what they mean; the controller only carries the tag.
const (
	KindHTTP    = "http"
	KindHLS     = "hls"
	KindDash    = "dash"
	KindTorrent = "torrent"
)

type (
	// AuthenticationInfo holds optional credentials for the source server.
	AuthenticationInfo struct {
		UserName string `toml:"UserName" json:"UserName"`
		Password string `toml:"Password" json:"Password"`
	}

	// ProxyInfo holds an optional per-download proxy configuration.
	ProxyInfo struct {
		Mode     string `toml:"Mode" json:"Mode"` // "none", "system" or "custom"
		Host     string `toml:"Host" json:"Host"`
		Port     int    `toml:"Port" json:"Port"`
		UserName string `toml:"UserName" json:"UserName"`
		Password string `toml:"Password" json:"Password"`
	}

	// DownloadEntry is the part shared by in-progress and finished entries.
	DownloadEntry struct {
		ID             string              `toml:"Id" json:"Id"`
		Name           string              `toml:"Name" json:"Name"`
		DateAdded      time.Time           `toml:"DateAdded" json:"DateAdded"`
		Size           int64               `toml:"Size" json:"Size"`
		DownloadType   string              `toml:"DownloadType" json:"DownloadType"`
		TargetDir      string              `toml:"TargetDir" json:"TargetDir"`
		PrimaryURL     string              `toml:"PrimaryUrl" json:"PrimaryUrl"`
		Authentication *AuthenticationInfo `toml:"Authentication,omitempty" json:"Authentication,omitempty"`
		Proxy          *ProxyInfo          `toml:"Proxy,omitempty" json:"Proxy,omitempty"`
		// MaxSpeedLimitKiB caps the transfer rate, 0 means unlimited.
		MaxSpeedLimitKiB int64 `toml:"MaxSpeedLimitKiB" json:"MaxSpeedLimitKiB"`
	}

	// InProgressEntry is a download that has not completed yet.
	InProgressEntry struct {
		DownloadEntry
		Status        Status `toml:"Status" json:"Status"`
		Progress      int    `toml:"Progress" json:"Progress"`
		DownloadSpeed string `toml:"DownloadSpeed" json:"DownloadSpeed"`
		ETA           string `toml:"Eta" json:"Eta"`
	}

	// FinishedEntry is a completed download.
	FinishedEntry struct {
		DownloadEntry
		FileSize     int64     `toml:"FileSize" json:"FileSize"`
		FilePath     string    `toml:"FilePath" json:"FilePath"`
		DateFinished time.Time `toml:"DateFinished" json:"DateFinished"`
	}

	// Queue is a named, ordered group of download identifiers.
	Queue struct {
		ID          string   `toml:"Id" json:"Id"`
		Name        string   `toml:"Name" json:"Name"`
		DownloadIDs []string `toml:"DownloadIds" json:"DownloadIds"`
	}
)

// NewInProgressEntry wraps base as a freshly created download: stopped, nothing transferred.
func NewInProgressEntry(base DownloadEntry) *InProgressEntry {
	if base.DateAdded.IsZero() {
		base.DateAdded = time.Now()
	}
	return &InProgressEntry{
		DownloadEntry: base,
		Status:        StatusStopped,
		Progress:      0,
	}
}

// Contains reports whether id is a member of the queue.
func (q Queue) Contains(id string) bool {
	for _, d := range q.DownloadIDs {
		if d == id {
			return true
		}
	}
	return false
}

type (
	// Config holds the application's configuration settings.
	Config struct {
		DataDir   string          `toml:"DataDir" json:"DataDir"`
		LogLevel  string          `toml:"LogLevel" json:"LogLevel"`
		LogFormat string          `toml:"LogFormat" json:"LogFormat"`
		Storage   StorageConfig   `toml:"Storage" json:"Storage"`
		Progress  ProgressConfig  `toml:"Progress" json:"Progress"`
		Queues    QueuesConfig    `toml:"Queues" json:"Queues"`
		Index     IndexConfig     `toml:"Index" json:"Index"`
		Links     LinksConfig     `toml:"Links" json:"Links"`
		Metrics   MetricsConfig   `toml:"Metrics" json:"Metrics"`
		Downloads DownloadsConfig `toml:"Downloads" json:"Downloads"`
		Engine    EngineConfig    `toml:"Engine" json:"Engine"`
	}

	// StorageConfig selects the persistence backend for the two download lists.
	StorageConfig struct {
		Backend string `toml:"Backend"` // "file", "bitcask" or "sqlite"
	}

	// ProgressConfig tunes how often progress updates reach storage.
	ProgressConfig struct {
		ThrottleMs int `toml:"ThrottleMs"`
	}

	QueuesConfig struct {
		File string `toml:"File"`
	}

	IndexConfig struct {
		Enabled bool   `toml:"Enabled"`
		Path    string `toml:"Path"`
	}

	// LinksConfig holds the pages opened by the help menu.
	LinksConfig struct {
		Help      string `toml:"Help"`
		Support   string `toml:"Support"`
		BugReport string `toml:"BugReport"`
	}

	MetricsConfig struct {
		Addr string `toml:"Addr"` // empty disables the endpoint
	}

	// DownloadsConfig holds defaults applied to newly added downloads.
	DownloadsConfig struct {
		DefaultDir          string `toml:"DefaultDir"`
		ConfirmDelete       bool   `toml:"ConfirmDelete"`
		ConfirmMoveToQueue  bool   `toml:"ConfirmMoveToQueue"`
		DefaultSpeedLimitKB int64  `toml:"DefaultSpeedLimitKB"`
		// DirPattern places new downloads under DefaultDir, e.g. "{category}/{host}".
		DirPattern string `toml:"DirPattern"`
	}

	// EngineConfig tunes the built-in HTTP transfer engine.
	EngineConfig struct {
		MaxConcurrent int    `toml:"MaxConcurrent"`
		HTTPLogFile   string `toml:"HTTPLogFile"` // empty disables request logging
	}
)
