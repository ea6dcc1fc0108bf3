package snapshots

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

const (
	defaultFileDir = "./data/holdings"
	fileExt        = ".json"
)

// FileStore keeps one JSON document per snapshot under <dir>/<fund>/<date>.json.
// Documents are replaced atomically via a synced temp file, so readers never
// observe a partial snapshot.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates a file-backed snapshot store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = defaultFileDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create snapshot dir")
	}

	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// keyLock returns the mutex serializing writers of one (fund, date) key.
func (s *FileStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *FileStore) fundDir(fundID string) string {
	return filepath.Join(s.dir, fundDirName(fundID))
}

// fundDirName keeps safe ids as they are. Any other id gets a hash suffix, so
// ids that sanitize alike ("A.B", "a_b") never share a directory. Safe ids
// contain no '_' and cannot clash with a suffixed name.
func fundDirName(fundID string) string {
	name := sanitizeFundID(fundID)
	if name == fundID {
		return name
	}
	sum := sha256.Sum256([]byte(fundID))
	return name + "_" + hex.EncodeToString(sum[:8])
}

func (s *FileStore) path(fundID string, on date.Date) string {
	return filepath.Join(s.fundDir(fundID), on.String()+fileExt)
}

// Save writes the snapshot, replacing the stored one for the same key.
func (s *FileStore) Save(ctx context.Context, snapshot domain.HoldingSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}
	if sanitizeFundID(snapshot.FundID) == "" {
		return errors.Wrapf(domain.ErrInvalidInput, "fund id %q cannot be stored", snapshot.FundID)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	l := s.keyLock(snapshot.Key())
	l.Lock()
	defer l.Unlock()

	dir := s.fundDir(snapshot.FundID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create fund snapshot dir")
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create snapshot temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write snapshot temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync snapshot temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close snapshot temp file")
	}

	if err := os.Rename(tmp.Name(), s.path(snapshot.FundID, snapshot.Date)); err != nil {
		return errors.Wrap(err, "persist snapshot")
	}

	return syncDir(dir)
}

// Load reads the snapshot stored for the exact key.
func (s *FileStore) Load(ctx context.Context, fundID string, on date.Date) (domain.HoldingSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.HoldingSnapshot{}, err
	}

	payload, err := os.ReadFile(s.path(fundID, on))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.HoldingSnapshot{}, notFound(fundID, on)
		}
		return domain.HoldingSnapshot{}, errors.Wrap(err, "read snapshot")
	}

	var snapshot domain.HoldingSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return domain.HoldingSnapshot{}, errors.Wrapf(err, "decode snapshot %s/%s", fundID, on)
	}
	// a document copied under another key is not served
	if snapshot.FundID != fundID || snapshot.Date != on {
		return domain.HoldingSnapshot{}, notFound(fundID, on)
	}

	return snapshot, nil
}

// ListDates lists the dates stored for a fund.
func (s *FileStore) ListDates(ctx context.Context, fundID string, since date.Date, count int) (iter.Seq[date.Date], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.fundDir(fundID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "list fund snapshots")
	}

	dates := make([]date.Date, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		d, err := date.Parse(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}

	return window(dates, since, count), nil
}

// Close is a no-op; every Save is already durable.
func (s *FileStore) Close() error { return nil }

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrap(err, "open snapshot dir")
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return errors.Wrap(err, "sync snapshot dir")
	}
	return nil
}

// sanitizeFundID maps a fund id to a safe directory name.
func sanitizeFundID(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder

	prevUnderscore := false

	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)

			prevUnderscore = false

			continue
		}

		if !prevUnderscore {
			b.WriteByte('_')

			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
