package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

const (
	defaultWALDir       = "./wal/holdings"
	walSegmentThreshold = 1000
	walMaxSegments      = 1000
	walKeyPrefix        = "holdings/"
)

// WALStore appends every saved snapshot to a gowal log in sync-disk mode.
// The log is replayed into an in-memory index on open; the last write of a key wins.
type WALStore struct {
	wal *gowal.Wal

	mu    sync.RWMutex
	index map[string]map[date.Date]domain.HoldingSnapshot // fund -> date -> snapshot
}

// NewWALStore initializes a WAL-backed snapshot store under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultWALDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", dir)
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "holdings_",
		SegmentThreshold: walSegmentThreshold,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init holdings WAL")
	}

	s := &WALStore{wal: wal, index: make(map[string]map[date.Date]domain.HoldingSnapshot)}
	if err := s.replay(); err != nil {
		_ = wal.Close()
		return nil, err
	}

	return s, nil
}

func (s *WALStore) replay() error {
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, walKeyPrefix) {
			continue
		}
		var snapshot domain.HoldingSnapshot
		if err := json.Unmarshal(msg.Value, &snapshot); err != nil {
			return errors.Wrapf(err, "decode WAL record %s", msg.Key)
		}
		s.put(snapshot)
	}
	return nil
}

func (s *WALStore) put(snapshot domain.HoldingSnapshot) {
	byDate, ok := s.index[snapshot.FundID]
	if !ok {
		byDate = make(map[date.Date]domain.HoldingSnapshot)
		s.index[snapshot.FundID] = byDate
	}
	byDate[snapshot.Date] = snapshot.Clone()
}

func walKey(snapshot domain.HoldingSnapshot) string {
	return fmt.Sprintf("%s%s", walKeyPrefix, snapshot.Key())
}

// Save appends the snapshot to the WAL.
func (s *WALStore) Save(ctx context.Context, snapshot domain.HoldingSnapshot) error {
	if s == nil || s.wal == nil {
		return errors.New("holdings store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, walKey(snapshot), payload); err != nil {
		return errors.Wrap(err, "append snapshot to WAL")
	}
	s.put(snapshot)

	return nil
}

// Load returns a copy of the snapshot stored for the exact key.
func (s *WALStore) Load(ctx context.Context, fundID string, on date.Date) (domain.HoldingSnapshot, error) {
	if s == nil || s.wal == nil {
		return domain.HoldingSnapshot{}, errors.New("holdings store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return domain.HoldingSnapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.index[fundID][on]
	if !ok {
		return domain.HoldingSnapshot{}, notFound(fundID, on)
	}
	return snapshot.Clone(), nil
}

// ListDates lists the dates stored for a fund.
func (s *WALStore) ListDates(ctx context.Context, fundID string, since date.Date, count int) (iter.Seq[date.Date], error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("holdings store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	dates := make([]date.Date, 0, len(s.index[fundID]))
	for d := range s.index[fundID] {
		dates = append(dates, d)
	}
	s.mu.RUnlock()

	return window(dates, since, count), nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("holdings store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
