// Package filestore keeps state and totals in a handful of JSON documents
// under one directory. It is the fallback when no database is reachable.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/domain/loom"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/timebucket"
)

const (
	statusFile      = "status.json"
	monthlyFile     = "monthly.json"
	shiftsFile      = "shifts.json"
	shiftsDailyFile = "shifts_daily.json"
	metaFile        = "meta.json"
)

// month -> loomId -> seconds
type monthlyDoc map[string]map[string]loom.StateSeconds

// bucket (month or shift date) -> shift -> seconds
type shiftDoc map[string]map[string]loom.StateSeconds

type fileStore struct {
	mu       sync.Mutex
	dir      string
	bucketer *timebucket.Bucketer
	log      *logger.Logger
	now      func() time.Time
}

// Open prepares dir and seeds every document that does not exist yet.
func Open(dir string, bucketer *timebucket.Bucketer, baseLog *logger.Logger) (store.Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	s := &fileStore{
		dir:      dir,
		bucketer: bucketer,
		log:      baseLog.With("repo", "FileStore", "dir", dir),
		now:      time.Now,
	}
	for _, name := range []string{statusFile, monthlyFile, shiftsFile, shiftsDailyFile, metaFile} {
		path := s.path(name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := writeAtomic(path, []byte("{}\n")); err != nil {
				return nil, fmt.Errorf("seed %s: %w", name, err)
			}
		}
	}
	return s, nil
}

func (s *fileStore) Kind() store.Kind { return store.KindFile }

func (s *fileStore) path(name string) string { return filepath.Join(s.dir, name) }

func (s *fileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

func (s *fileStore) Close() error { return nil }

// readDoc decodes name into v, a pointer to an empty document. v is only
// touched after a clean decode: a missing, null or unreadable file leaves it
// as passed in, and an unreadable one is moved aside.
func (s *fileStore) readDoc(name string, v interface{}) error {
	path := s.path(name)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	fresh := reflect.New(reflect.TypeOf(v).Elem())
	if err := json.Unmarshal(raw, fresh.Interface()); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", path, s.now().Unix())
		s.log.Warn("Corrupt document, starting empty", "file", name, "error", err, "moved_to", aside)
		if rerr := os.Rename(path, aside); rerr != nil {
			s.log.Warn("Could not move corrupt document", "file", name, "error", rerr)
		}
		return nil
	}
	if !fresh.Elem().IsZero() {
		reflect.ValueOf(v).Elem().Set(fresh.Elem())
	}
	return nil
}

func (s *fileStore) writeDoc(name string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.path(name), append(raw, '\n'))
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func (s *fileStore) LoadSnapshots(ctx context.Context) ([]loom.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := map[string]loom.Snapshot{}
	if err := s.readDoc(statusFile, &doc); err != nil {
		return nil, err
	}
	out := make([]loom.Snapshot, 0, len(doc))
	for id, snap := range doc {
		snap.LoomID = id
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoomID < out[j].LoomID })
	return out, nil
}

// Commit writes the status document first and the totals after it. A crash
// in between loses at most this ingest's credit.
func (s *fileStore) Commit(ctx context.Context, w store.IngestWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := make(map[string]loom.Snapshot, len(w.All)+1)
	if len(w.All) > 0 {
		for _, snap := range w.All {
			doc[snap.LoomID] = snap
		}
	} else if err := s.readDoc(statusFile, &doc); err != nil {
		return err
	}
	doc[w.Snapshot.LoomID] = w.Snapshot
	if err := s.writeDoc(statusFile, doc); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	if w.Credit == nil || w.Credit.Delta.IsZero() {
		return nil
	}
	if err := s.creditMonthly(w.Credit.LoomID, w.Credit.Timestamp, w.Credit.Delta); err != nil {
		return fmt.Errorf("credit monthly: %w", err)
	}
	if err := s.creditShift(w.Credit.Timestamp, w.Credit.Delta); err != nil {
		return fmt.Errorf("credit shift: %w", err)
	}
	return nil
}

func (s *fileStore) CreditMonthly(ctx context.Context, loomID string, ts int64, delta loom.StateSeconds) error {
	if delta.IsZero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditMonthly(loomID, ts, delta)
}

func (s *fileStore) CreditShift(ctx context.Context, ts int64, delta loom.StateSeconds) error {
	if delta.IsZero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditShift(ts, delta)
}

func (s *fileStore) creditMonthly(loomID string, ts int64, delta loom.StateSeconds) error {
	doc := monthlyDoc{}
	if err := s.readDoc(monthlyFile, &doc); err != nil {
		return err
	}
	month := s.bucketer.MonthKey(ts)
	if doc[month] == nil {
		doc[month] = map[string]loom.StateSeconds{}
	}
	doc[month][loomID] = doc[month][loomID].Add(delta)
	return s.writeDoc(monthlyFile, doc)
}

func (s *fileStore) creditShift(ts int64, delta loom.StateSeconds) error {
	keys := s.bucketer.Keys(ts)
	if err := s.addShift(shiftsFile, keys.Month, keys.Shift, delta); err != nil {
		return err
	}
	return s.addShift(shiftsDailyFile, keys.ShiftDate, keys.Shift, delta)
}

func (s *fileStore) addShift(name, bucket, shift string, delta loom.StateSeconds) error {
	doc := shiftDoc{}
	if err := s.readDoc(name, &doc); err != nil {
		return err
	}
	if doc[bucket] == nil {
		doc[bucket] = map[string]loom.StateSeconds{}
	}
	doc[bucket][shift] = doc[bucket][shift].Add(delta)
	return s.writeDoc(name, doc)
}

func (s *fileStore) MonthlyTotals(ctx context.Context, month string) ([]loom.MonthlyTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := monthlyDoc{}
	if err := s.readDoc(monthlyFile, &doc); err != nil {
		return nil, err
	}
	rows := make([]loom.MonthlyTotal, 0, len(doc[month]))
	for id, states := range doc[month] {
		rows = append(rows, loom.MonthlyTotal{LoomID: id, Month: month, States: states})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].LoomID < rows[j].LoomID })
	return rows, nil
}

func (s *fileStore) ShiftTotals(ctx context.Context, period store.Period, key string) ([]store.ShiftRow, error) {
	name := shiftsFile
	if period == store.PeriodDaily {
		name = shiftsDailyFile
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := shiftDoc{}
	if err := s.readDoc(name, &doc); err != nil {
		return nil, err
	}
	return store.FillShifts(doc[key]), nil
}

func (s *fileStore) readMeta() (map[string]loom.Meta, error) {
	doc := map[string]loom.Meta{}
	if err := s.readDoc(metaFile, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *fileStore) GetMeta(ctx context.Context, loomID string) (loom.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readMeta()
	if err != nil {
		return loom.Meta{}, err
	}
	m, ok := doc[loomID]
	if !ok {
		return loom.Meta{}, store.ErrNotFound
	}
	m.LoomID = loomID
	return m, nil
}

func (s *fileStore) ListMeta(ctx context.Context) ([]loom.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readMeta()
	if err != nil {
		return nil, err
	}
	out := make([]loom.Meta, 0, len(doc))
	for id, m := range doc {
		m.LoomID = id
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoomID < out[j].LoomID })
	return out, nil
}

func (s *fileStore) UpsertMeta(ctx context.Context, meta loom.Meta) (loom.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readMeta()
	if err != nil {
		return loom.Meta{}, err
	}
	meta.UpdatedAt = s.now()
	doc[meta.LoomID] = meta
	if err := s.writeDoc(metaFile, doc); err != nil {
		return loom.Meta{}, err
	}
	return meta, nil
}

func (s *fileStore) UpdateMeta(ctx context.Context, loomID string, fn func(m *loom.Meta) error) (loom.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readMeta()
	if err != nil {
		return loom.Meta{}, err
	}
	current, ok := doc[loomID]
	if !ok {
		current = loom.Meta{}
	}
	current.LoomID = loomID
	if err := fn(&current); err != nil {
		return loom.Meta{}, err
	}
	current.LoomID = loomID
	current.UpdatedAt = s.now()
	doc[loomID] = current
	if err := s.writeDoc(metaFile, doc); err != nil {
		return loom.Meta{}, err
	}
	return current, nil
}
