package textgen

import (
	"errors"
	"sync"
)

// ErrNoKeys is returned when a KeyRing is constructed without any API keys.
var ErrNoKeys = errors.New("no api keys configured")

// KeyRing is the rotation policy for text-generation API keys. It is built
// once at startup from the enumerated key list and round-robins across
// requests, so retry order is deterministic and testable.
type KeyRing struct {
	mu   sync.Mutex
	keys []string
	next int
}

func NewKeyRing(keys []string) (*KeyRing, error) {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrNoKeys
	}
	return &KeyRing{keys: cleaned}, nil
}

// Next returns the next key in rotation.
func (r *KeyRing) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.keys[r.next]
	r.next = (r.next + 1) % len(r.keys)
	return key
}

// Len reports how many keys are in rotation.
func (r *KeyRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
