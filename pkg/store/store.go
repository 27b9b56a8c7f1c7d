package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/go-errors/errors"
	"github.com/moby/sys/atomicwriter"
	"github.com/samber/lo"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

// Lifecycle states a deployment moves through. INSTALLING is the only
// transient one; a daemon restart finding it means the pipeline died
// mid-flight.
const (
	StateInstalling = "INSTALLING"
	StateReady      = "READY"
	StateFailed     = "FAILED"
)

// Record is everything we persist about one deployment.
type Record struct {
	State       string `json:"state"`
	ContainerID string `json:"containerId"`
	DiskLimit   int64  `json:"diskLimit"`
}

// Store keeps deployment records in a single JSON document on disk.
// Every mutation rereads the file, applies the change and rewrites it
// atomically, so records survive crashes and external edits alike.
type Store struct {
	Log *logrus.Entry

	path string
	mu   deadlock.Mutex
}

// New opens a store rooted at dir, creating the directory as needed.
func New(log *logrus.Entry, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return &Store{
		Log:  log,
		path: filepath.Join(dir, "states.json"),
	}, nil
}

// Read returns all records. A missing file reads as an empty store.
func (s *Store) Read() (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Get returns one record and whether it exists.
func (s *Store) Get(id string) (Record, bool, error) {
	records, err := s.Read()
	if err != nil {
		return Record{}, false, err
	}
	record, ok := records[id]
	return record, ok, nil
}

// Update replaces the record for id wholesale. Fields absent from the
// new record do not survive; callers merge before calling.
func (s *Store) Update(id string, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	records[id] = record
	return s.write(records)
}

// SetState rewrites only the lifecycle state of an existing record,
// creating it when absent.
func (s *Store) SetState(id string, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	record := records[id]
	record.State = state
	records[id] = record
	return s.write(records)
}

// Remove deletes the record for id. Removing an absent record is a
// no-op.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := records[id]; !ok {
		return nil
	}
	delete(records, id)
	return s.write(records)
}

// IDs returns the ids of all records.
func (s *Store) IDs() ([]string, error) {
	records, err := s.Read()
	if err != nil {
		return nil, err
	}
	return lo.Keys(records), nil
}

func (s *Store) read() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil
		}
		return nil, errors.Wrap(err, 0)
	}

	records := map[string]Record{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Errorf("corrupt state file %s: %v", s.path, err)
	}
	return records, nil
}

func (s *Store) write(records map[string]Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, 0)
	}
	// write-then-rename keeps readers from ever seeing a half-written file
	if err := atomicwriter.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}
