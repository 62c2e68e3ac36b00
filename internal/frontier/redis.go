package frontier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFrontier keeps the visited set and pending queue in Redis so a crawl
// can be shared between processes or resumed after a restart. In-flight
// accounting stays process-local: drain detection assumes all workers of the
// crawl run in this process.
type RedisFrontier struct {
	client     *redis.Client
	visitedKey string
	pendingKey string
	poll       time.Duration

	mu       sync.Mutex
	inFlight int
	closed   bool
}

func NewRedis(client *redis.Client, runID string) *RedisFrontier {
	return &RedisFrontier{
		client:     client,
		visitedKey: fmt.Sprintf("crawl:%s:visited", runID),
		pendingKey: fmt.Sprintf("crawl:%s:pending", runID),
		poll:       100 * time.Millisecond,
	}
}

func (f *RedisFrontier) Enqueue(url string) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	f.mu.Unlock()

	ctx := context.Background()
	added, err := f.client.SAdd(ctx, f.visitedKey, url).Result()
	if err != nil || added == 0 {
		return false
	}
	if err := f.client.RPush(ctx, f.pendingKey, url).Err(); err != nil {
		return false
	}
	return true
}

func (f *RedisFrontier) Next(ctx context.Context) (string, error) {
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return "", ErrClosed
		}
		f.mu.Unlock()

		url, err := f.client.LPop(ctx, f.pendingKey).Result()
		switch {
		case err == nil:
			f.mu.Lock()
			f.inFlight++
			f.mu.Unlock()
			return url, nil
		case errors.Is(err, redis.Nil):
			f.mu.Lock()
			idle := f.inFlight == 0
			f.mu.Unlock()
			if idle {
				return "", ErrDrained
			}
		default:
			return "", fmt.Errorf("failed to pop pending url: %w", err)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.poll):
		}
	}
}

func (f *RedisFrontier) Done(_ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
}

func (f *RedisFrontier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Reset drops the crawl keys so a run id can be reused.
func (f *RedisFrontier) Reset(ctx context.Context) error {
	if err := f.client.Del(ctx, f.visitedKey, f.pendingKey).Err(); err != nil {
		return fmt.Errorf("failed to reset frontier keys: %w", err)
	}
	return nil
}
