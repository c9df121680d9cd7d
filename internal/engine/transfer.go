package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JaymoCodes/xdm/internal/helpers"
	"github.com/JaymoCodes/xdm/internal/models"

	"github.com/juju/ratelimit"
	log "github.com/sirupsen/logrus"
)

// Transfer errors
var (
	ErrHttpStatus  = errors.New("unexpected HTTP status code")
	ErrFileSystem  = errors.New("filesystem error")
	ErrHttpRequest = errors.New("HTTP request creation/execution error")
	ErrUnsupported = errors.New("unsupported download type")
)

// Proxy modes carried by models.ProxyInfo.
const (
	ProxyNone   = "none"
	ProxySystem = "system"
	ProxyCustom = "custom"
)

const (
	userAgent   = "xdm/1.0"
	partSuffix  = ".xdm.part"
	defaultName = "download"
)

// partPath is where the bytes of id accumulate until the transfer completes.
// It is keyed by id so a rename does not lose the partial data.
func partPath(dir, id string) string {
	return filepath.Join(dir, "."+id+partSuffix)
}

// discardPart removes the partial data of entry. A missing file is fine.
func discardPart(entry models.InProgressEntry) error {
	part := partPath(entry.TargetDir, entry.ID)
	if err := os.Remove(part); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: removing %s: %w", ErrFileSystem, part, err)
	}
	log.WithField("id", entry.ID).Debug("Discarded partial data")
	return nil
}

func (e *Engine) transfer(ctx context.Context, r Reporter, entry models.InProgressEntry) (string, int64, error) {
	if entry.DownloadType != "" && entry.DownloadType != models.KindHTTP {
		return "", 0, fmt.Errorf("%w: %s", ErrUnsupported, entry.DownloadType)
	}
	if !helpers.CheckAndMakeDir(entry.TargetDir) {
		return "", 0, fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, entry.TargetDir)
	}

	part := partPath(entry.TargetDir, entry.ID)
	var offset int64
	if info, err := os.Stat(part); err == nil {
		offset = info.Size()
	}

	req, err := createHTTPRequest(ctx, entry, offset)
	if err != nil {
		return "", 0, err
	}
	resp, err := e.clientFor(entry).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, fmt.Errorf("%w: performing request for %s: %v", ErrHttpRequest, entry.PrimaryURL, err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		log.WithField("id", entry.ID).Debugf("Resuming at byte %d", offset)
	case http.StatusOK:
		offset = 0
		flags |= os.O_TRUNC
	default:
		return "", 0, fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, entry.PrimaryURL)
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}
	name := resolveName(entry, resp)
	size := entry.Size
	if total > 0 {
		size = total
	}
	if name != entry.Name || size != entry.Size {
		r.UpdateItem(entry.ID, name, size)
	}

	// #nosec G304
	out, err := os.OpenFile(part, flags, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("%w: opening %s: %w", ErrFileSystem, part, err)
	}
	counter := &countingWriter{w: out}
	counter.n.Store(offset)

	var body io.Reader = resp.Body
	if entry.MaxSpeedLimitKiB > 0 {
		rate := float64(entry.MaxSpeedLimitKiB * 1024)
		body = ratelimit.Reader(body, ratelimit.NewBucketWithRate(rate, int64(rate)))
	}

	log.Infof("Downloading %s to %s (Size: %s)...", entry.PrimaryURL, part, helpers.FormatSize(float64(size)))
	stop := e.reportProgress(r, entry.ID, counter, total)
	_, copyErr := io.Copy(counter, body)
	stop()
	closeErr := out.Close()
	if copyErr != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, fmt.Errorf("writing to %s: %w", part, copyErr)
	}
	if closeErr != nil {
		return "", 0, fmt.Errorf("%w: closing %s: %w", ErrFileSystem, part, closeErr)
	}

	written := counter.n.Load()
	if total > 0 && written < total {
		return "", 0, fmt.Errorf("%w: short transfer, got %d of %d bytes", ErrHttpRequest, written, total)
	}

	final, err := finalizePart(part, filepath.Join(entry.TargetDir, name))
	if err != nil {
		return "", 0, err
	}
	if base := filepath.Base(final); base != name {
		r.RenameFile(entry.ID, "", base)
	}
	return final, written, nil
}

func createHTTPRequest(ctx context.Context, entry models.InProgressEntry, offset int64) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.PrimaryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating download request for %s: %w", ErrHttpRequest, entry.PrimaryURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	if a := entry.Authentication; a != nil && a.UserName != "" {
		req.SetBasicAuth(a.UserName, a.Password)
	}
	return req, nil
}

func (e *Engine) clientFor(entry models.InProgressEntry) *http.Client {
	p := entry.Proxy
	if p == nil || p.Mode == "" || p.Mode == ProxySystem {
		return e.client
	}
	var proxy func(*http.Request) (*url.URL, error)
	if p.Mode == ProxyCustom && p.Host != "" {
		u := &url.URL{Scheme: "http", Host: net.JoinHostPort(p.Host, strconv.Itoa(p.Port))}
		if p.UserName != "" {
			u.User = url.UserPassword(p.UserName, p.Password)
		}
		proxy = http.ProxyURL(u)
	}
	return &http.Client{Transport: withProxy(e.client.Transport, proxy), Timeout: e.client.Timeout}
}

func withProxy(rt http.RoundTripper, proxy func(*http.Request) (*url.URL, error)) http.RoundTripper {
	switch t := rt.(type) {
	case nil:
		return withProxy(http.DefaultTransport, proxy)
	case *http.Transport:
		c := t.Clone()
		c.Proxy = proxy
		return c
	case *LoggingTransport:
		return t.wrap(withProxy(t.Transport, proxy))
	}
	log.Warnf("Per-download proxy ignored for transport %T", rt)
	return rt
}

// resolveName picks the file name: the entry's own, then the server's
// Content-Disposition, then the last URL path segment.
func resolveName(entry models.InProgressEntry, resp *http.Response) string {
	if name := helpers.SanitizeFileName(entry.Name); name != "" {
		return name
	}
	if name := helpers.SanitizeFileName(extractFilenameFromResponse(resp)); name != "" {
		return name
	}
	if u, err := url.Parse(entry.PrimaryURL); err == nil {
		if name := helpers.SanitizeFileName(path.Base(u.Path)); name != "" {
			return name
		}
	}
	return defaultName
}

// extractFilenameFromResponse extracts filename from Content-Disposition header
func extractFilenameFromResponse(resp *http.Response) string {
	contentDisposition := resp.Header.Get("Content-Disposition")
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err == nil && params["filename"] != "" {
		log.Debugf("Received filename from Content-Disposition: %s", params["filename"])
		return params["filename"]
	}
	if err != nil {
		log.WithError(err).Warnf("Could not parse Content-Disposition header: %s", contentDisposition)
	}
	return ""
}

// finalizePart moves the finished part file to target. A target without an
// extension gets one from the detected MIME type, and an existing file is
// never overwritten.
func finalizePart(part, target string) (string, error) {
	if filepath.Ext(target) == "" {
		if ext := detectExtension(part); ext != "" {
			target += ext
		}
	}
	target = uniquePath(target)
	if err := os.Rename(part, target); err != nil {
		return "", fmt.Errorf("%w: renaming %s to %s: %w", ErrFileSystem, part, target, err)
	}
	return target, nil
}

func detectExtension(file string) string {
	// #nosec G304
	f, err := os.Open(file)
	if err != nil {
		log.WithError(err).Warnf("Failed to open %s for MIME detection", file)
		return ""
	}
	defer f.Close()

	buffer := make([]byte, 512)
	n, err := f.Read(buffer)
	if err != nil && err != io.EOF {
		return ""
	}
	mimeType := http.DetectContentType(buffer[:n])
	exts, err := mime.ExtensionsByType(strings.SplitN(mimeType, ";", 2)[0])
	if err != nil || len(exts) == 0 {
		log.Debugf("No extension known for MIME type %s", mimeType)
		return ""
	}
	return exts[0]
}

// uniquePath returns p, or p with " (n)" before the extension when p exists.
func uniquePath(p string) string {
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return p
	}
	ext := filepath.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}

// reportProgress ticks progress for id until the returned func is called.
func (e *Engine) reportProgress(r Reporter, id string, c *countingWriter, total int64) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		last, lastAt := c.n.Load(), time.Now()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				n := c.n.Load()
				speed := 0.0
				if elapsed := now.Sub(lastAt).Seconds(); elapsed > 0 {
					speed = float64(n-last) / elapsed
				}
				last, lastAt = n, now
				r.UpdateProgress(id, percentOf(n, total), speed, etaOf(n, total, speed))
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func percentOf(n, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(n * 100 / total)
	if p > 100 {
		p = 100
	}
	return p
}

// etaOf returns the seconds left, or -1 when unknown.
func etaOf(n, total int64, speed float64) int64 {
	if total <= 0 || speed <= 0 || n >= total {
		return -1
	}
	return int64(float64(total-n) / speed)
}
