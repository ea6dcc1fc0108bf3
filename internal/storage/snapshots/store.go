// Package snapshots persists holdings snapshots keyed by (fund, date).
package snapshots

import (
	"context"
	"iter"
	"slices"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

const (
	BackendFile = "file"
	BackendWAL  = "wal"
)

// Store durable snapshot persistence.
//
// Save overwrites any snapshot stored under the same (fund, date) key and is
// durable once it returns. Load fails with domain.ErrNotFound when the exact
// key is absent. ListDates yields stored dates not before since (zero since means
// no bound), most recent first, at most count of them (count <= 0 means all).
type Store interface {
	Save(ctx context.Context, snapshot domain.HoldingSnapshot) error
	Load(ctx context.Context, fundID string, on date.Date) (domain.HoldingSnapshot, error)
	ListDates(ctx context.Context, fundID string, since date.Date, count int) (iter.Seq[date.Date], error)
	Close() error
}

// Open creates the store for the configured backend under dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(dir)
	case BackendWAL:
		return NewWALStore(dir)
	default:
		return nil, errors.Errorf("unknown snapshot storage backend %q", backend)
	}
}

func notFound(fundID string, on date.Date) error {
	return errors.Wrapf(domain.ErrNotFound, "fund %s on %s", fundID, on)
}

// window sorts dates most recent first and applies the since/count bounds.
// The returned sequence ranges over its own copy and can be replayed.
func window(dates []date.Date, since date.Date, count int) iter.Seq[date.Date] {
	dates = slices.DeleteFunc(slices.Clone(dates), func(d date.Date) bool {
		return !since.IsZero() && d.Before(since)
	})
	slices.SortFunc(dates, func(a, b date.Date) int { return b.Compare(a) })
	if count > 0 && len(dates) > count {
		dates = dates[:count]
	}

	return func(yield func(date.Date) bool) {
		for _, d := range dates {
			if !yield(d) {
				return
			}
		}
	}
}
