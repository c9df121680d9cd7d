package controller

import "sync"

// PromptTracker remembers which URLs currently have a new-download dialog
// open, so a browser that sends the same link twice gets one dialog.
type PromptTracker struct {
	mu   sync.Mutex
	open map[string]struct{}
}

// NewPromptTracker returns an empty tracker.
func NewPromptTracker() *PromptTracker {
	return &PromptTracker{open: make(map[string]struct{})}
}

// Open marks url as prompted and reports whether it was not already.
// The empty URL (a blank dialog) is never tracked.
func (p *PromptTracker) Open(url string) bool {
	if url == "" {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.open[url]; ok {
		return false
	}
	p.open[url] = struct{}{}
	return true
}

// Close forgets url.
func (p *PromptTracker) Close(url string) {
	p.mu.Lock()
	delete(p.open, url)
	p.mu.Unlock()
}

// IsOpen reports whether a dialog for url is showing.
func (p *PromptTracker) IsOpen(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.open[url]
	return ok
}
