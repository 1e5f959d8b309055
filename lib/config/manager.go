package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Manager errors.
var (
	ErrNoManager     = errors.New("config: no config manager available")
	ErrNotRegistered = errors.New("config: id not registered")
)

// Manager serves live configuration documents (a JSON object or array) by id. Get fetches the latest document,
// GetLocal returns the locally stored copy or nil when there is none, and Register declares interest in an id.
type Manager interface {
	Get(ctx context.Context, id string) (json.RawMessage, error)
	GetLocal(ctx context.Context, id string) (json.RawMessage, error)
	Register(id string)
}

// Rejecting is the default Manager: every call fails with ErrNoManager. Hosts must supply a real Manager to get live
// config updates.
type Rejecting struct{}

// Get implements Manager.
func (Rejecting) Get(context.Context, string) (json.RawMessage, error) { return nil, ErrNoManager }

// GetLocal implements Manager.
func (Rejecting) GetLocal(context.Context, string) (json.RawMessage, error) { return nil, ErrNoManager }

// Register implements Manager.
func (Rejecting) Register(string) {}

// FileManager serves documents from <dir>/<id>.json for registered ids.
type FileManager struct {
	dir string
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewFileManager returns a FileManager reading from dir.
func NewFileManager(dir string) *FileManager {
	return &FileManager{dir: dir, ids: make(map[string]struct{})}
}

// Register implements Manager.
func (m *FileManager) Register(id string) {
	m.mu.Lock()
	m.ids[id] = struct{}{}
	m.mu.Unlock()
}

func (m *FileManager) read(id string) (json.RawMessage, error) {
	m.mu.RLock()
	_, ok := m.ids[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	b, err := os.ReadFile(filepath.Join(m.dir, filepath.Base(id)+".json"))
	if err != nil {
		return nil, err
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("config: %s.json is not valid JSON", id)
	}
	return json.RawMessage(b), nil
}

// Get implements Manager.
func (m *FileManager) Get(_ context.Context, id string) (json.RawMessage, error) {
	return m.read(id)
}

// GetLocal implements Manager. A missing file is not an error.
func (m *FileManager) GetLocal(_ context.Context, id string) (json.RawMessage, error) {
	b, err := m.read(id)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

// GetCoinConfig fetches the document registered for id and decodes it as a coin record.
func GetCoinConfig(ctx context.Context, m Manager, id string) (*CoinConfig, error) {
	b, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var c CoinConfig
	if err = json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", id, err)
	}
	return &c, nil
}
