package scripmaster

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Cache is a short-lived shared copy of the master (Redis).
type Cache interface {
	Get(ctx context.Context) ([]byte, time.Time, error)
	Set(ctx context.Context, fetchedAt time.Time, body []byte) error
}

// Snapshots is the durable fallback (SQLite).
type Snapshots interface {
	Save(ctx context.Context, fetchedAt time.Time, source string, body []byte) (int64, error)
	Latest(ctx context.Context) ([]byte, time.Time, error)
}

// Origin says where a CachedSource body came from.
type Origin string

const (
	OriginCache    Origin = "cache"
	OriginUpstream Origin = "upstream"
	OriginSnapshot Origin = "snapshot"
)

// CachedSource tries the cache, then the upstream source, then the latest
// snapshot. Every body must pass Validate; a cached or snapshot body that
// fails is treated as a miss. Only a validated upstream fetch is written back
// to both stores; store write failures are logged, not returned. Cache and
// Snapshots may be nil.
type CachedSource struct {
	Upstream  Source
	Cache     Cache
	Snapshots Snapshots
	// MaxSnapshotAge rejects older snapshots; zero accepts any age.
	MaxSnapshotAge time.Duration
	// Validate defaults to ValidateCatalog().
	Validate func(body []byte) error

	now        func() time.Time
	lastOrigin Origin
}

// NewCachedSource creates a CachedSource.
func NewCachedSource(upstream Source, cache Cache, snapshots Snapshots) *CachedSource {
	return &CachedSource{
		Upstream:  upstream,
		Cache:     cache,
		Snapshots: snapshots,
		Validate:  ValidateCatalog(),
		now:       time.Now,
	}
}

func (s *CachedSource) Name() string { return "cached(" + s.Upstream.Name() + ")" }

// LastOrigin reports where the last successful Fetch was served from.
func (s *CachedSource) LastOrigin() Origin { return s.lastOrigin }

// Fetch returns the master body.
func (s *CachedSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.Cache != nil {
		body, at, err := s.Cache.Get(ctx)
		switch {
		case err != nil:
			slog.Debug("scripmaster: cache miss", "error", err)
		case len(body) == 0:
		default:
			if verr := s.validate(body); verr != nil {
				slog.Warn("scripmaster: cached master rejected", "fetched_at", at, "error", verr)
				break
			}
			slog.Info("scripmaster: served from cache", "fetched_at", at, "bytes", len(body))
			s.lastOrigin = OriginCache
			return body, nil
		}
	}

	body, upErr := s.Upstream.Fetch(ctx)
	if upErr == nil {
		upErr = s.validate(body)
	}
	if upErr == nil {
		s.store(ctx, body)
		s.lastOrigin = OriginUpstream
		return body, nil
	}

	if s.Snapshots == nil {
		return nil, upErr
	}
	slog.Warn("scripmaster: upstream failed, trying snapshot", "error", upErr)
	body, at, err := s.Snapshots.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w (snapshot fallback: %v)", upErr, err)
	}
	if s.MaxSnapshotAge > 0 && s.now().Sub(at) > s.MaxSnapshotAge {
		return nil, fmt.Errorf("%w (snapshot from %s is older than %s)", upErr, at.Format(time.RFC3339), s.MaxSnapshotAge)
	}
	if err := s.validate(body); err != nil {
		return nil, fmt.Errorf("%w (snapshot rejected: %v)", upErr, err)
	}
	slog.Info("scripmaster: served from snapshot", "fetched_at", at, "bytes", len(body))
	s.lastOrigin = OriginSnapshot
	return body, nil
}

func (s *CachedSource) validate(body []byte) error {
	if s.Validate == nil {
		_, err := Decode(body)
		return err
	}
	return s.Validate(body)
}

func (s *CachedSource) store(ctx context.Context, body []byte) {
	at := s.now()
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, at, body); err != nil {
			slog.Warn("scripmaster: cache write failed", "error", err)
		}
	}
	if s.Snapshots != nil {
		if _, err := s.Snapshots.Save(ctx, at, s.Upstream.Name(), body); err != nil {
			slog.Warn("scripmaster: snapshot write failed", "error", err)
		}
	}
}

// SetClock overrides the clock used for store timestamps and snapshot age.
func (s *CachedSource) SetClock(now func() time.Time) { s.now = now }
