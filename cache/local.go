package cache

import (
	"bytes"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// local is the optional in-process layer backed by ristretto. It holds raw
// envelopes for at most their fresh window (capped by maxTTL). All methods
// are no-ops on a nil *local.
type local struct {
	rc     *ristretto.Cache[string, []byte]
	maxTTL time.Duration
}

func newLocal(maxEntries int64, maxTTL time.Duration) (*local, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// Cost counts entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &local{rc: rc, maxTTL: maxTTL}, nil
}

func (l *local) get(key string) ([]byte, bool) {
	if l == nil {
		return nil, false
	}
	v, ok := l.rc.Get(key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// set stores raw for ttl, capped by maxTTL. Non-positive TTLs are ignored.
func (l *local) set(key string, raw []byte, ttl time.Duration) {
	if l == nil {
		return
	}
	if l.maxTTL > 0 {
		ttl = min(ttl, l.maxTTL)
	}
	if ttl <= 0 {
		return
	}
	l.rc.SetWithTTL(key, bytes.Clone(raw), 1, ttl)
	l.rc.Wait()
}

func (l *local) del(key string) {
	if l == nil {
		return
	}
	l.rc.Del(key)
}

func (l *local) clear() {
	if l == nil {
		return
	}
	l.rc.Clear()
}

func (l *local) close() {
	if l == nil {
		return
	}
	l.rc.Close()
}
