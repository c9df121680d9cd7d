package exchange

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JaymoCodes/xdm/internal/models"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLists() ([]models.InProgressEntry, []models.FinishedEntry) {
	added := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ip := []models.InProgressEntry{
		{
			DownloadEntry: models.DownloadEntry{
				ID: "a", Name: "big.iso", DateAdded: added, Size: 1 << 30,
				DownloadType: models.KindHTTP, TargetDir: "/dl", PrimaryURL: "https://example.org/big.iso",
				Authentication: &models.AuthenticationInfo{UserName: "u", Password: "p"},
			},
			Status:        models.StatusActive,
			Progress:      40,
			DownloadSpeed: "1.0 MiB/s",
			ETA:           "00:10:00",
		},
		{
			DownloadEntry: models.DownloadEntry{ID: "b", Name: "clip.mp4", DateAdded: added},
			Status:        models.StatusPaused,
			Progress:      5,
		},
	}
	fin := []models.FinishedEntry{
		{
			DownloadEntry: models.DownloadEntry{ID: "c", Name: "doc.pdf", DateAdded: added, Size: 2048},
			FileSize:      2048,
			FilePath:      "/dl/doc.pdf",
			DateFinished:  added.Add(time.Hour),
		},
	}
	return ip, fin
}

func TestExportImportRoundTrip(t *testing.T) {
	ip, fin := sampleLists()

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, ip, fin))
	assert.Contains(t, buf.String(), "[[InProgress]]")
	assert.Contains(t, buf.String(), "[[Finished]]")

	lf, err := Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, lf.Version)
	require.Len(t, lf.InProgress, 2)
	require.Len(t, lf.Finished, 1)

	got := lf.InProgress[0]
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, "https://example.org/big.iso", got.PrimaryURL)
	assert.True(t, got.DateAdded.Equal(ip[0].DateAdded))
	require.NotNil(t, got.Authentication)
	assert.Equal(t, "u", got.Authentication.UserName)
	assert.Equal(t, 40, got.Progress)
	// Nothing runs after an import.
	assert.Equal(t, models.StatusStopped, got.Status)
	assert.Empty(t, got.DownloadSpeed)
	assert.Empty(t, got.ETA)

	assert.Equal(t, models.StatusPaused, lf.InProgress[1].Status)
	assert.Nil(t, lf.InProgress[1].Authentication)

	assert.Equal(t, "/dl/doc.pdf", lf.Finished[0].FilePath)
	assert.True(t, lf.Finished[0].DateFinished.Equal(fin[0].DateFinished))
}

func TestImportDropsEntriesWithoutID(t *testing.T) {
	doc := `
Version = 1

[[InProgress]]
Name = "nameless"

[[InProgress]]
Id = "x"
Name = "kept"
Status = "Bogus"

[[Finished]]
Name = "also nameless"
`
	lf, err := Import(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, lf.InProgress, 1)
	assert.Equal(t, "x", lf.InProgress[0].ID)
	assert.Equal(t, models.StatusStopped, lf.InProgress[0].Status)
	assert.Empty(t, lf.Finished)
}

func TestImportRejectsNewerVersion(t *testing.T) {
	_, err := Import(strings.NewReader("Version = 99\n"))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestImportRejectsGarbage(t *testing.T) {
	_, err := Import(strings.NewReader("[[InProgress]\nnot toml"))
	assert.Error(t, err)
}

func TestExportFileImportFile(t *testing.T) {
	ip, fin := sampleLists()
	path := filepath.Join(t.TempDir(), "out", "lists.toml")

	require.NoError(t, ExportFile(path, ip, fin))
	lf, err := ImportFile(path)
	require.NoError(t, err)
	assert.Len(t, lf.InProgress, 2)
	assert.Len(t, lf.Finished, 1)

	_, err = ImportFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// writeTorrent creates a small single-file torrent the same way the torrent
// command of a seeding tool would.
func writeTorrent(t *testing.T, trackers ...string) string {
	t.Helper()
	dir := t.TempDir()
	payload := filepath.Join(dir, "payload.bin")
	require.NoError(t, os.WriteFile(payload, bytes.Repeat([]byte("x"), 70000), 0o600))

	info := metainfo.Info{PieceLength: 16 * 1024}
	require.NoError(t, info.BuildFromFilePath(payload))
	infoBytes, err := bencode.Marshal(info)
	require.NoError(t, err)

	mi := metainfo.MetaInfo{InfoBytes: infoBytes}
	if len(trackers) > 0 {
		mi.Announce = trackers[0]
		mi.AnnounceList = [][]string{trackers}
	}

	out := filepath.Join(dir, "payload.torrent")
	f, err := os.Create(out)
	require.NoError(t, err)
	require.NoError(t, mi.Write(f))
	require.NoError(t, f.Close())
	return out
}

func TestEntryFromTorrent(t *testing.T) {
	path := writeTorrent(t, "udp://tracker.example:1337/announce", "ftp://ignored.example", "udp://tracker.example:1337/announce")

	e, err := EntryFromTorrent(path, "/downloads")
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "payload.bin", e.Name)
	assert.Equal(t, int64(70000), e.Size)
	assert.Equal(t, models.KindTorrent, e.DownloadType)
	assert.Equal(t, "/downloads", e.TargetDir)
	assert.Equal(t, models.StatusStopped, e.Status)
	assert.Zero(t, e.Progress)

	assert.True(t, strings.HasPrefix(e.PrimaryURL, "magnet:?xt=urn:btih:"))
	assert.Contains(t, e.PrimaryURL, "dn=payload.bin")
	assert.Equal(t, 1, strings.Count(e.PrimaryURL, "tr="), "duplicate and non-network trackers are skipped")
}

func TestEntryFromTorrentRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.torrent")
	require.NoError(t, os.WriteFile(path, []byte("definitely not bencode"), 0o600))
	_, err := EntryFromTorrent(path, "")
	assert.Error(t, err)
}
