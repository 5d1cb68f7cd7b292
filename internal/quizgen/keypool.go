package quizgen

import (
	"strings"
	"sync/atomic"
)

// KeyPool holds the provider credentials in a fixed order plus the cursor
// selecting the active one. The cursor is shared by every Generate call
// running on the same pool.
type KeyPool struct {
	keys   []string
	cursor atomic.Int64
}

// NewKeyPool drops empty slots, keeping the relative order of the rest.
func NewKeyPool(slots ...string) (*KeyPool, error) {
	keys := make([]string, 0, len(slots))
	for _, s := range slots {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		keys = append(keys, s)
	}
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return &KeyPool{keys: keys}, nil
}

func (p *KeyPool) Size() int { return len(p.keys) }

// Cursor returns the index of the active key.
func (p *KeyPool) Cursor() int { return int(p.cursor.Load()) }

// SetCursor moves the cursor to i mod Size.
func (p *KeyPool) SetCursor(i int) {
	n := len(p.keys)
	p.cursor.Store(int64(((i % n) + n) % n))
}

// Current returns the key at the cursor.
func (p *KeyPool) Current() string {
	_, key := p.Active()
	return key
}

// Active returns the cursor and its key from a single read.
func (p *KeyPool) Active() (int, string) {
	i := p.Cursor()
	return i, p.keys[i]
}

// Rotate advances the cursor circularly and returns the new index.
func (p *KeyPool) Rotate() int {
	n := int64(len(p.keys))
	for {
		cur := p.cursor.Load()
		next := (cur + 1) % n
		if p.cursor.CompareAndSwap(cur, next) {
			return int(next)
		}
	}
}
