package exchange

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JaymoCodes/xdm/internal/models"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EntryFromTorrent builds a new stopped download from a .torrent file. The
// magnet link becomes the primary URL so the engine can fetch it without the file.
func EntryFromTorrent(path, targetDir string) (*models.InProgressEntry, error) {
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading torrent %s: %w", path, err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("reading info dictionary of %s: %w", path, err)
	}

	magnet := MagnetURI(mi, info)
	log.WithFields(log.Fields{
		"name":  info.Name,
		"files": len(info.UpvertedFiles()),
		"size":  info.TotalLength(),
	}).Debug("Loaded torrent metainfo")

	return models.NewInProgressEntry(models.DownloadEntry{
		ID:           uuid.NewString(),
		Name:         info.Name,
		Size:         info.TotalLength(),
		DownloadType: models.KindTorrent,
		TargetDir:    targetDir,
		PrimaryURL:   magnet,
	}), nil
}

// MagnetURI builds a magnet link with the info hash, display name and every
// http, https or udp tracker, each listed once.
func MagnetURI(mi *metainfo.MetaInfo, info metainfo.Info) string {
	parts := []string{
		fmt.Sprintf("magnet:?xt=urn:btih:%s", mi.HashInfoBytes().HexString()),
		fmt.Sprintf("dn=%s", url.QueryEscape(info.Name)),
	}

	seen := make(map[string]struct{})
	add := func(tracker string) {
		if _, ok := seen[tracker]; ok {
			return
		}
		u, err := url.Parse(tracker)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "udp") {
			return
		}
		seen[tracker] = struct{}{}
		parts = append(parts, fmt.Sprintf("tr=%s", url.QueryEscape(tracker)))
	}
	if mi.Announce != "" {
		add(mi.Announce)
	}
	for _, tier := range mi.AnnounceList {
		for _, tracker := range tier {
			add(tracker)
		}
	}
	return strings.Join(parts, "&")
}
