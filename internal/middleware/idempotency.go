package middleware

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "X-Idempotency-Replayed"

	maxIdempotencyBodySize = 1 << 20
	maxIdempotencyKeyLen   = 255
)

// ReplayEntry is a stored response for one idempotency key.
type ReplayEntry struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// ReplayStore keeps responses for replay. Get returns nil, nil for an
// unknown or expired key.
type ReplayStore interface {
	Get(ctx context.Context, key string) (*ReplayEntry, error)
	Set(ctx context.Context, key string, entry ReplayEntry, ttl time.Duration) error
}

// Idempotency replays the stored response when a request repeats an
// Idempotency-Key, so a register that retries an enqueue after a timeout
// does not queue the sale twice. Requests with the same key are served one
// at a time. Only responses below 500 are stored.
func Idempotency(store ReplayStore, ttl time.Duration) func(http.Handler) http.Handler {
	var locks keyedMutex
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"Idempotency-Key is too long","code":"invalid_idempotency_key"}` + "\n"))
				return
			}

			scoped := r.Method + " " + r.URL.Path + " " + key
			unlock := locks.lock(scoped)
			defer unlock()

			entry, err := store.Get(r.Context(), scoped)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency lookup failed, serving request")
			}
			if entry != nil {
				if entry.ContentType != "" {
					w.Header().Set("Content-Type", entry.ContentType)
				}
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(entry.Status)
				w.Write(entry.Body)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 500 && !rec.bodyTruncated {
				err := store.Set(context.WithoutCancel(r.Context()), scoped, ReplayEntry{
					Status:      rec.statusCode,
					ContentType: rec.Header().Get("Content-Type"),
					Body:        rec.body.Bytes(),
				}, ttl)
				if err != nil {
					log.Warn().Err(err).Msg("failed to store idempotent response")
				}
			}
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// keyedMutex serializes work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu      sync.Mutex
	waiters int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.waiters++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.waiters--
		if l.waiters == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// MemoryReplayStore keeps replay entries in process memory.
type MemoryReplayStore struct {
	mu      sync.Mutex
	entries map[string]memoryReplay
	now     func() time.Time
}

type memoryReplay struct {
	entry     ReplayEntry
	expiresAt time.Time
}

func NewMemoryReplayStore() *MemoryReplayStore {
	return &MemoryReplayStore{entries: make(map[string]memoryReplay), now: time.Now}
}

func (s *MemoryReplayStore) Get(_ context.Context, key string) (*ReplayEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	entry := e.entry
	entry.Body = append([]byte(nil), e.entry.Body...)
	return &entry, nil
}

func (s *MemoryReplayStore) Set(_ context.Context, key string, entry ReplayEntry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	entry.Body = append([]byte(nil), entry.Body...)
	s.entries[key] = memoryReplay{entry: entry, expiresAt: now.Add(ttl)}
	return nil
}
