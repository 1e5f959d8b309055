package store

import (
	"context"

	"go.uber.org/zap"
)

// Nop is the default DB for headless use: every table call is logged at debug level and resolves empty.
type Nop struct {
	Log *zap.SugaredLogger
}

// Table implements DB.
func (n Nop) Table(name string) Table {
	log := n.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return nopTable{name: name, log: log}
}

// Close implements DB.
func (Nop) Close(context.Context) error { return nil }

type nopTable struct {
	name string
	log  *zap.SugaredLogger
}

func (t nopTable) Get(_ context.Context, key Key) (Record, error) {
	t.log.Debugw("nop table get", "table", t.name, "key", key.String())
	return nil, nil
}

func (t nopTable) GetAll(context.Context) ([]Record, error) {
	t.log.Debugw("nop table getAll", "table", t.name)
	return nil, nil
}

func (t nopTable) Put(_ context.Context, key Key, _ Record) error {
	t.log.Debugw("nop table put", "table", t.name, "key", key.String())
	return nil
}

func (t nopTable) Update(_ context.Context, key Key, _ Record) error {
	t.log.Debugw("nop table update", "table", t.name, "key", key.String())
	return nil
}

func (t nopTable) Delete(_ context.Context, key Key) error {
	t.log.Debugw("nop table delete", "table", t.name, "key", key.String())
	return nil
}

func (t nopTable) BatchPut(_ context.Context, entries []Entry) error {
	t.log.Debugw("nop table batchPut", "table", t.name, "count", len(entries))
	return nil
}

func (t nopTable) BatchDelete(_ context.Context, keys []Key) error {
	t.log.Debugw("nop table batchDelete", "table", t.name, "count", len(keys))
	return nil
}

func (t nopTable) BatchUpdate(_ context.Context, entries []Entry) error {
	t.log.Debugw("nop table batchUpdate", "table", t.name, "count", len(entries))
	return nil
}
