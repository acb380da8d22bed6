package content

import (
	"context"
	"time"

	"github.com/marmos91/homefs/pkg/metrics"
)

// meteredStore decorates a Store with per-operation metrics.
type meteredStore struct {
	Store
	backend string
	m       metrics.ContentMetrics
}

// WithMetrics wraps s so every call is reported to m under the backend label.
// A nil m returns s unchanged.
func WithMetrics(s Store, backend string, m metrics.ContentMetrics) Store {
	if m == nil {
		return s
	}
	return &meteredStore{Store: s, backend: backend, m: m}
}

func (s *meteredStore) observe(op string, start time.Time, err error) {
	s.m.ObserveOperation(s.backend, op, time.Since(start), err)
}

func (s *meteredStore) EnsureHome(ctx context.Context, owner string) (err error) {
	defer func(start time.Time) { s.observe("EnsureHome", start, err) }(time.Now())
	return s.Store.EnsureHome(ctx, owner)
}

func (s *meteredStore) HomeExists(ctx context.Context, owner string) (ok bool, err error) {
	defer func(start time.Time) { s.observe("HomeExists", start, err) }(time.Now())
	return s.Store.HomeExists(ctx, owner)
}

func (s *meteredStore) RemoveHome(ctx context.Context, owner string) (err error) {
	defer func(start time.Time) { s.observe("RemoveHome", start, err) }(time.Now())
	return s.Store.RemoveHome(ctx, owner)
}

func (s *meteredStore) ListHome(ctx context.Context, owner string) (names []string, err error) {
	defer func(start time.Time) { s.observe("ListHome", start, err) }(time.Now())
	return s.Store.ListHome(ctx, owner)
}

func (s *meteredStore) Create(ctx context.Context, id ID, data []byte) (err error) {
	defer func(start time.Time) { s.observe("Create", start, err) }(time.Now())
	if err = s.Store.Create(ctx, id, data); err == nil {
		s.m.RecordBytes(s.backend, "write", int64(len(data)))
	}
	return err
}

func (s *meteredStore) Append(ctx context.Context, id ID, data []byte) (err error) {
	defer func(start time.Time) { s.observe("Append", start, err) }(time.Now())
	if err = s.Store.Append(ctx, id, data); err == nil {
		s.m.RecordBytes(s.backend, "write", int64(len(data)))
	}
	return err
}

func (s *meteredStore) Overwrite(ctx context.Context, id ID, data []byte) (err error) {
	defer func(start time.Time) { s.observe("Overwrite", start, err) }(time.Now())
	if err = s.Store.Overwrite(ctx, id, data); err == nil {
		s.m.RecordBytes(s.backend, "write", int64(len(data)))
	}
	return err
}

func (s *meteredStore) Truncate(ctx context.Context, id ID) (err error) {
	defer func(start time.Time) { s.observe("Truncate", start, err) }(time.Now())
	return s.Store.Truncate(ctx, id)
}

func (s *meteredStore) Read(ctx context.Context, id ID) (data []byte, err error) {
	defer func(start time.Time) { s.observe("Read", start, err) }(time.Now())
	if data, err = s.Store.Read(ctx, id); err == nil {
		s.m.RecordBytes(s.backend, "read", int64(len(data)))
	}
	return data, err
}

func (s *meteredStore) Delete(ctx context.Context, id ID) (err error) {
	defer func(start time.Time) { s.observe("Delete", start, err) }(time.Now())
	return s.Store.Delete(ctx, id)
}

func (s *meteredStore) Exists(ctx context.Context, id ID) (ok bool, err error) {
	defer func(start time.Time) { s.observe("Exists", start, err) }(time.Now())
	return s.Store.Exists(ctx, id)
}
