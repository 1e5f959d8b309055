// Package memory implements an in-process store on top of bigcache. Records are JSON encoded and kept under
// "<table>\x00<key>" so one cache serves every table.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/tarancss/mcw/lib/store"
)

const sep = "\x00"

// Memory is a store.DB living in process memory. Nothing expires.
type Memory struct {
	cache *bigcache.BigCache
}

// New returns an empty memory store.
func New() (*Memory, error) {
	cfg := bigcache.DefaultConfig(100 * 365 * 24 * time.Hour)
	cfg.Shards = 16
	cfg.MaxEntriesInWindow = 1024
	cfg.MaxEntrySize = 512
	cfg.CleanWindow = 0
	cfg.Verbose = false

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("memory: creating cache: %w", err)
	}
	return &Memory{cache: cache}, nil
}

// Table implements store.DB.
func (m *Memory) Table(name string) store.Table {
	return &table{c: m.cache, prefix: name + sep}
}

// Close implements store.DB.
func (m *Memory) Close(context.Context) error {
	return m.cache.Close()
}

type table struct {
	c      *bigcache.BigCache
	prefix string
}

func (t *table) key(k store.Key) (string, error) {
	if k.IsZero() {
		return "", store.ErrEmptyKey
	}
	return t.prefix + k.String(), nil
}

func (t *table) Get(_ context.Context, k store.Key) (store.Record, error) {
	key, err := t.key(k)
	if err != nil {
		return nil, err
	}
	b, err := t.c.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r store.Record
	if err = json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("memory: decoding %s: %w", key, err)
	}
	return r, nil
}

func (t *table) GetAll(context.Context) ([]store.Record, error) {
	var all []store.Record
	it := t.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(e.Key(), t.prefix) {
			continue
		}
		var r store.Record
		if err = json.Unmarshal(e.Value(), &r); err != nil {
			return nil, fmt.Errorf("memory: decoding %s: %w", e.Key(), err)
		}
		all = append(all, r)
	}
	return all, nil
}

func (t *table) Put(_ context.Context, k store.Key, r store.Record) error {
	key, err := t.key(k)
	if err != nil {
		return err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("memory: encoding %s: %w", key, err)
	}
	return t.c.Set(key, b)
}

func (t *table) Update(ctx context.Context, k store.Key, r store.Record) error {
	old, err := t.Get(ctx, k)
	if err != nil {
		return err
	}
	if old == nil {
		return store.ErrDataNotFound
	}
	return t.Put(ctx, k, store.Merge(old, r))
}

func (t *table) Delete(_ context.Context, k store.Key) error {
	key, err := t.key(k)
	if err != nil {
		return err
	}
	if err = t.c.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (t *table) BatchPut(ctx context.Context, entries []store.Entry) error {
	for _, e := range entries {
		if err := t.Put(ctx, e.Key, e.Record); err != nil {
			return err
		}
	}
	return nil
}

func (t *table) BatchDelete(ctx context.Context, keys []store.Key) error {
	for _, k := range keys {
		if err := t.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (t *table) BatchUpdate(ctx context.Context, entries []store.Entry) error {
	for _, e := range entries {
		if err := t.Update(ctx, e.Key, e.Record); err != nil {
			return err
		}
	}
	return nil
}
