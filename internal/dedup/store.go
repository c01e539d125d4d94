// Package dedup tracks recently seen event identities.
//
// A Store wraps a backend Client and applies the dedup policy: reads fail
// open (a broken backend never blocks ingestion) and writes fail hard (an
// identity is only considered claimed once the backend acknowledged it).
package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is how long a claimed identity suppresses duplicates.
const DefaultTTL = 30 * time.Minute

// ErrAlreadyClaimed is returned by Client.Claim when a live record for the
// identity exists, i.e. another claim won.
var ErrAlreadyClaimed = errors.New("dedup: identity already claimed")

// Client is a TTL-scoped key-value backend. Implementations must make Claim
// atomic: of two concurrent claims for one identity at most one succeeds.
type Client interface {
	// Exists reports whether a record for id expires after now.
	Exists(ctx context.Context, id string, now time.Time) (bool, error)
	// Claim records id until expiresAt. It returns ErrAlreadyClaimed when a
	// record expiring after now is present.
	Claim(ctx context.Context, id string, expiresAt, now time.Time) error
	Close() error
}

// Store applies the fail-open read / hard-fail write policy over a Client.
type Store struct {
	client     Client
	ttl        time.Duration
	now        func() time.Time
	log        zerolog.Logger
	onFailOpen func()
}

type Option func(*Store)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithFailOpenHook registers a callback run every time a read error is
// swallowed.
func WithFailOpenHook(fn func()) Option {
	return func(s *Store) { s.onFailOpen = fn }
}

// NewStore returns a Store over client. A non-positive ttl selects DefaultTTL.
func NewStore(client Client, ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the dedup window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Exists reports whether id was claimed within the TTL window. Backend
// errors are logged and reported as "not seen".
func (s *Store) Exists(ctx context.Context, id string) bool {
	ok, err := s.client.Exists(ctx, id, s.now())
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", id).Msg("dedup lookup failed, treating event as new")
		if s.onFailOpen != nil {
			s.onFailOpen()
		}
		return false
	}
	return ok
}

// Claim records id for the TTL window. Errors are returned unchanged so the
// caller can decide whether to retry.
func (s *Store) Claim(ctx context.Context, id string) error {
	now := s.now()
	return s.client.Claim(ctx, id, now.Add(s.ttl), now)
}

func (s *Store) Close() error {
	return s.client.Close()
}
