package engine

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoggingTransport wraps an http.RoundTripper and appends request and
// response headers to a log file. Bodies are never logged.
type LoggingTransport struct {
	Transport http.RoundTripper
	sink      *logSink
}

type logSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// NewLoggingTransport opens logFilePath for appending.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	// #nosec G304
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open HTTP log file %s: %w", logFilePath, err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &LoggingTransport{
		Transport: transport,
		sink:      &logSink{file: f, writer: bufio.NewWriter(f)},
	}, nil
}

// wrap returns a transport that logs to the same file through rt.
func (t *LoggingTransport) wrap(rt http.RoundTripper) *LoggingTransport {
	return &LoggingTransport{Transport: rt, sink: t.sink}
}

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	if reqDump, err := httputil.DumpRequestOut(req, false); err != nil {
		log.WithError(err).Error("[LogTransport] Failed to dump request for logging")
	} else {
		t.sink.write(fmt.Sprintf("--- Request (%s) ---\n%s", startTime.Format(time.RFC3339), redact(string(reqDump))))
	}

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)

	if err != nil {
		t.sink.write(fmt.Sprintf("--- Response Error (%s, Duration: %v) ---\n%s", time.Now().Format(time.RFC3339), duration, err.Error()))
	} else {
		respDump, _ := httputil.DumpResponse(resp, false)
		t.sink.write(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s", time.Now().Format(time.RFC3339), duration, string(respDump)))
	}
	return resp, err
}

// Close flushes and closes the log file shared by every wrapped copy.
func (t *LoggingTransport) Close() error {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()

	errFlush := t.sink.writer.Flush()
	errClose := t.sink.file.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush HTTP log buffer: %w", errFlush)
	}
	return errClose
}

func (s *logSink) write(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.WriteString(entry + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to HTTP log file: %v\n", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		log.WithError(err).Error("[LogTransport] Failed to flush log writer")
	}
}

// redact hides credential headers in a request dump.
func redact(dump string) string {
	lines := strings.Split(dump, "\r\n")
	for i, line := range lines {
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "authorization:") || strings.HasPrefix(lower, "proxy-authorization:") {
			name, _, _ := strings.Cut(line, ":")
			lines[i] = name + ": [redacted]"
		}
	}
	return strings.Join(lines, "\r\n")
}
