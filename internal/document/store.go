package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// DefaultMaxPriceHistory bounds latest_prices.
const DefaultMaxPriceHistory = 100

// Store reads and writes the two flat JSON documents.
type Store struct {
	configPath string
	statePath  string
	maxHistory int

	// serialises read-modify-write of the state document within this process
	mu sync.Mutex
}

// NewStore constructs a document store.
func NewStore(configPath, statePath string, maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxPriceHistory
	}
	return &Store{configPath: configPath, statePath: statePath, maxHistory: maxHistory}
}

// MaxHistory is the price history length kept in the state document.
func (s *Store) MaxHistory() int { return s.maxHistory }

// LoadConfig reads the config document. found is false when the file does not exist.
func (s *Store) LoadConfig() (doc ConfigDocument, found bool, err error) {
	found, err = readJSON(s.configPath, &doc)
	return doc, found, err
}

// SaveConfig atomically replaces the config document.
func (s *Store) SaveConfig(doc ConfigDocument) error {
	return writeJSON(s.configPath, doc)
}

// LoadState reads the state document; a missing file yields an empty document.
func (s *Store) LoadState() (StateDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadStateLocked()
}

func (s *Store) loadStateLocked() (StateDocument, error) {
	var doc StateDocument
	if _, err := readJSON(s.statePath, &doc); err != nil {
		return StateDocument{}, err
	}
	doc.normalize()
	return doc, nil
}

// UpdateState applies fn to the current state document and writes it back.
func (s *Store) UpdateState(fn func(*StateDocument)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadStateLocked()
	if err != nil {
		return err
	}
	fn(&doc)
	return writeJSON(s.statePath, doc)
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// writeJSON writes to a sibling temp file and renames it over path so readers
// never observe a partially written document.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
