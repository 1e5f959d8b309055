// Package store defines the table interface used by wallets and watchers to persist records, independently of the
// database product behind it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Table names used by the services.
const (
	TableTransactions = "transactions"
	TableWatcher      = "watcher"
	TableAddresses    = "addresses"
)

// Errors returned
var (
	ErrDataNotFound = errors.New("store: data was not found")
	ErrEmptyKey     = errors.New("store: empty key")
)

// Key identifies a record in a table. It is a single string, a composite of strings or a number.
type Key struct {
	parts []string
}

// StringKey returns a key made of one string.
func StringKey(s string) Key { return Key{parts: []string{s}} }

// CompositeKey returns a key made of several strings, ie. wallet id and transaction hash.
func CompositeKey(parts ...string) Key { return Key{parts: append([]string(nil), parts...)} }

// NumberKey returns a numeric key.
func NumberKey(n int64) Key { return Key{parts: []string{strconv.FormatInt(n, 10)}} }

// String renders the key as its parts joined by "/".
func (k Key) String() string { return strings.Join(k.parts, "/") }

// Parts returns the key components.
func (k Key) Parts() []string { return append([]string(nil), k.parts...) }

// IsZero reports whether the key is empty.
func (k Key) IsZero() bool { return k.String() == "" }

// Record is a stored document.
type Record map[string]interface{}

// Entry pairs a key and a record for batch operations.
type Entry struct {
	Key    Key
	Record Record
}

// Table is a key/record collection. Get returns a nil record and no error when the key is absent. Update merges the
// given fields into an existing record and returns ErrDataNotFound if there is none.
type Table interface {
	Get(ctx context.Context, key Key) (Record, error)
	GetAll(ctx context.Context) ([]Record, error)
	Put(ctx context.Context, key Key, r Record) error
	Update(ctx context.Context, key Key, r Record) error
	Delete(ctx context.Context, key Key) error
	BatchPut(ctx context.Context, entries []Entry) error
	BatchDelete(ctx context.Context, keys []Key) error
	BatchUpdate(ctx context.Context, entries []Entry) error
}

// DB gives access to named tables.
type DB interface {
	Table(name string) Table
	Close(ctx context.Context) error
}

// ToRecord converts a struct with json tags into a Record.
func ToRecord(v interface{}) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: encoding record: %w", err)
	}
	var r Record
	if err = json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("store: encoding record: %w", err)
	}
	return r, nil
}

// Decode fills v, a pointer to a struct with json tags, from the record.
func Decode(r Record, v interface{}) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: decoding record: %w", err)
	}
	if err = json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("store: decoding record: %w", err)
	}
	return nil
}

// Merge copies the fields of src over dst and returns dst, allocating it if nil.
func Merge(dst, src Record) Record {
	if dst == nil {
		dst = make(Record, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
