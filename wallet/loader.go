package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrUnknownDependency is returned when loading a library nobody registered.
var ErrUnknownDependency = errors.New("wallet: unknown dependency")

// LoadFunc loads a library.
type LoadFunc func(ctx context.Context) (interface{}, error)

// Loader loads libraries by name on first use. Concurrent loads of the same name share one call and a successful
// result is kept for the life of the loader; failures are retried on the next call.
type Loader struct {
	mu    sync.RWMutex
	funcs map[string]LoadFunc
	libs  map[string]interface{}
	sf    singleflight.Group
}

// NewLoader returns an empty loader.
func NewLoader() *Loader {
	return &Loader{funcs: make(map[string]LoadFunc), libs: make(map[string]interface{})}
}

// Register declares how to load name. Registering a loaded name has no effect on the loaded value.
func (l *Loader) Register(name string, fn LoadFunc) {
	l.mu.Lock()
	l.funcs[name] = fn
	l.mu.Unlock()
}

// Load returns the library registered as name, loading it if needed.
func (l *Loader) Load(ctx context.Context, name string) (interface{}, error) {
	l.mu.RLock()
	lib, ok := l.libs[name]
	fn := l.funcs[name]
	l.mu.RUnlock()
	if ok {
		return lib, nil
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDependency, name)
	}
	v, err, _ := l.sf.Do(name, func() (interface{}, error) {
		lib, err := fn(ctx)
		if err != nil {
			return nil, fmt.Errorf("wallet: loading %s: %w", name, err)
		}
		l.mu.Lock()
		l.libs[name] = lib
		l.mu.Unlock()
		return lib, nil
	})
	return v, err
}

// Loaded reports whether name has been loaded.
func (l *Loader) Loaded(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.libs[name]
	return ok
}

// Names returns the registered names, sorted.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.funcs))
	for n := range l.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
