// Package frontier holds the visited-set and pending-queue state that drives
// a breadth-first crawl.
package frontier

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrDrained is returned by Next once the pending queue is empty and no
	// URL is in flight. The crawl is complete.
	ErrDrained = errors.New("frontier drained")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("frontier closed")
)

// Frontier hands out discovered URLs in FIFO order. Enqueue tests and records
// visited membership atomically, so a URL is dispatched at most once per crawl
// regardless of how many workers share the frontier.
type Frontier interface {
	// Enqueue adds a URL to the pending queue. It returns false if the URL
	// was already enqueued at some point during this crawl.
	Enqueue(url string) bool
	// Next blocks until a URL is available, the frontier drains, the
	// frontier is closed, or ctx is cancelled. Callers must pair every
	// successful Next with a Done call.
	Next(ctx context.Context) (string, error)
	// Done signals that work on a previously dispatched URL has finished.
	Done(url string)
	Close() error
}

// InMemoryFrontier is the default single-process implementation.
type InMemoryFrontier struct {
	mu       sync.Mutex
	wake     chan struct{}
	visited  map[string]struct{}
	pending  []string
	inFlight int
	closed   bool
}

func NewInMemory() *InMemoryFrontier {
	return &InMemoryFrontier{
		wake:    make(chan struct{}),
		visited: make(map[string]struct{}),
	}
}

// broadcast wakes every blocked Next caller. Callers must hold mu.
func (f *InMemoryFrontier) broadcast() {
	close(f.wake)
	f.wake = make(chan struct{})
}

func (f *InMemoryFrontier) Enqueue(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if _, seen := f.visited[url]; seen {
		return false
	}

	f.visited[url] = struct{}{}
	f.pending = append(f.pending, url)
	f.broadcast()
	return true
}

func (f *InMemoryFrontier) Next(ctx context.Context) (string, error) {
	f.mu.Lock()
	for {
		if len(f.pending) > 0 {
			url := f.pending[0]
			f.pending = f.pending[1:]
			f.inFlight++
			f.mu.Unlock()
			return url, nil
		}
		if f.closed {
			f.mu.Unlock()
			return "", ErrClosed
		}
		if f.inFlight == 0 {
			// Nothing queued, nothing running: the crawl cannot grow.
			f.mu.Unlock()
			return "", ErrDrained
		}

		wake := f.wake
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wake:
		}
		f.mu.Lock()
	}
}

func (f *InMemoryFrontier) Done(_ string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight > 0 {
		f.inFlight--
	}
	f.broadcast()
}

func (f *InMemoryFrontier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	f.broadcast()
	return nil
}

// VisitedCount reports how many distinct URLs have been enqueued.
func (f *InMemoryFrontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}
