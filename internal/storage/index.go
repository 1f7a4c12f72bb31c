package storage

import (
	"bufio"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrNoMatches is returned when no conversations match the query.
	ErrNoMatches = errors.New("no conversations found")
	// ErrManyMatches is returned when multiple conversations match the query.
	ErrManyMatches = errors.New("multiple conversations matched the input")
)

const (
	indexFileName = "index.jsonl"
	lockFileName  = "index.lock"

	// the log is rewritten once it holds this many events and at least
	// compactRatio times as many events as live records.
	compactMinEvents = 256
	compactRatio     = 4
)

const (
	opUpsert = "upsert"
	opDelete = "delete"
)

type event struct {
	Op     string  `json:"op"`
	ID     string  `json:"id,omitempty"`
	Record *Record `json:"conversation,omitempty"`
}

// Record is the metadata kept for a stored conversation.
type Record struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	UpdatedAt      time.Time `json:"updated_at"`
	API            string    `json:"api,omitempty"`
	Model          string    `json:"model,omitempty"`
	ExternalUserID string    `json:"external_user_id,omitempty"`
	Messages       int       `json:"messages,omitempty"`
}

// Index is an append-only JSONL log of conversation records, shared between
// processes through a file lock.
type Index struct {
	mu      sync.RWMutex
	path    string
	lock    *flock.Flock
	records map[string]Record
	events  int
}

// OpenIndex loads the index kept in dir, creating dir if needed.
func OpenIndex(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	idx := &Index{
		path:    filepath.Join(dir, indexFileName),
		lock:    flock.New(filepath.Join(dir, lockFileName)),
		records: map[string]Record{},
	}
	if err := idx.replay(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Put upserts rec, stamping its update time.
func (idx *Index) Put(rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("put: empty id")
	}
	if strings.TrimSpace(rec.Title) == "" {
		return errors.New("put: empty title")
	}
	rec.UpdatedAt = time.Now().UTC()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.records[rec.ID] = rec
	if err := idx.appendLocked(event{Op: opUpsert, Record: &rec}); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return idx.maybeCompactLocked()
}

// Remove drops the record with the given ID. Unknown IDs are ignored.
func (idx *Index) Remove(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("remove: empty id")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.records[id]; !ok {
		return nil
	}
	delete(idx.records, id)
	if err := idx.appendLocked(event{Op: opDelete, ID: id}); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return idx.maybeCompactLocked()
}

// Get returns the record with exactly the given ID.
func (idx *Index) Get(id string) (Record, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rec, ok := idx.records[id]
	return rec, ok
}

// List returns every record, most recently updated first.
func (idx *Index) List() []Record {
	return idx.filter(func(Record) bool { return true })
}

// ListFor returns the records owned by an external user, most recent first.
func (idx *Index) ListFor(externalUserID string) []Record {
	return idx.filter(func(r Record) bool { return r.ExternalUserID == externalUserID })
}

// ListOlderThan returns records not updated within d.
func (idx *Index) ListOlderThan(d time.Duration) []Record {
	cutoff := time.Now().Add(-d)
	return idx.filter(func(r Record) bool { return r.UpdatedAt.Before(cutoff) })
}

// Latest returns the most recently updated record.
func (idx *Index) Latest() (Record, error) {
	list := idx.List()
	if len(list) == 0 {
		return Record{}, fmt.Errorf("latest: %w", ErrNoMatches)
	}
	return list[0], nil
}

// Find resolves a record by ID prefix or exact title.
func (idx *Index) Find(in string) (Record, error) {
	matches := idx.filter(func(r Record) bool {
		if r.Title == in {
			return true
		}
		return len(in) >= SHA1MinLen && strings.HasPrefix(r.ID, in)
	})
	switch len(matches) {
	case 0:
		return Record{}, fmt.Errorf("%w: %s", ErrNoMatches, in)
	case 1:
		return matches[0], nil
	default:
		return Record{}, fmt.Errorf("%w: %s", ErrManyMatches, in)
	}
}

// Completions returns shell completion candidates for IDs and titles.
func (idx *Index) Completions(in string) []string {
	seen := map[string]struct{}{}
	for _, rec := range idx.List() {
		short := rec.ID
		if len(short) > SHA1Short {
			short = short[:SHA1Short]
		}
		if strings.HasPrefix(rec.ID, in) {
			id := rec.ID
			if len(in) < SHA1Short {
				id = short
			}
			seen[id+"\t"+rec.Title] = struct{}{}
		}
		if strings.HasPrefix(rec.Title, in) {
			seen[rec.Title+"\t"+short] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

func (idx *Index) filter(keep func(Record) bool) []Record {
	idx.mu.RLock()
	out := make([]Record, 0, len(idx.records))
	for _, rec := range idx.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	idx.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (idx *Index) withFileLock(fn func() error) error {
	if err := idx.lock.Lock(); err != nil {
		return fmt.Errorf("lock index: %w", err)
	}
	defer func() { _ = idx.lock.Unlock() }()
	return fn()
}

func (idx *Index) replay() error {
	return idx.withFileLock(func() error {
		file, err := os.Open(idx.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer file.Close() //nolint:errcheck

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var evt event
			if err := json.Unmarshal([]byte(line), &evt); err != nil {
				return fmt.Errorf("parse index event: %w", err)
			}
			if err := idx.apply(evt); err != nil {
				return err
			}
			idx.events++
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("scan index: %w", err)
		}
		return nil
	})
}

func (idx *Index) apply(evt event) error {
	switch evt.Op {
	case opUpsert:
		if evt.Record == nil || strings.TrimSpace(evt.Record.ID) == "" {
			return errors.New("invalid upsert event")
		}
		idx.records[evt.Record.ID] = *evt.Record
	case opDelete:
		if strings.TrimSpace(evt.ID) == "" {
			return errors.New("invalid delete event")
		}
		delete(idx.records, evt.ID)
	default:
		return fmt.Errorf("invalid index event op: %q", evt.Op)
	}
	return nil
}

func (idx *Index) appendLocked(evt event) error {
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal index event: %w", err)
	}
	line = append(line, '\n')

	return idx.withFileLock(func() error {
		file, err := os.OpenFile(idx.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer func() { _ = file.Close() }()
		if _, err := file.Write(line); err != nil {
			return fmt.Errorf("write index event: %w", err)
		}
		if err := file.Sync(); err != nil {
			return fmt.Errorf("sync index: %w", err)
		}
		idx.events++
		return nil
	})
}

func (idx *Index) maybeCompactLocked() error {
	if idx.events < compactMinEvents {
		return nil
	}
	if len(idx.records) > 0 && idx.events < len(idx.records)*compactRatio {
		return nil
	}
	return idx.withFileLock(idx.rewriteLocked)
}

// rewriteLocked replaces the log with one upsert per live record.
func (idx *Index) rewriteLocked() error {
	records := make([]Record, 0, len(idx.records))
	for _, rec := range idx.records {
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b Record) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	tmp := idx.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open compacted index: %w", err)
	}
	enc := json.NewEncoder(file)
	for _, rec := range records {
		if err := enc.Encode(event{Op: opUpsert, Record: &rec}); err != nil {
			_ = file.Close()
			return fmt.Errorf("write compacted index: %w", err)
		}
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync compacted index: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close compacted index: %w", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	idx.events = len(records)
	return nil
}
