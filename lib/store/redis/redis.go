// Package redis implements the store interface for Redis. Each table is a hash named "<prefix>:<table>" whose fields
// are the rendered keys and whose values are JSON documents.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tarancss/mcw/lib/store"
)

// Prefix of the hash names.
const Prefix = "mcw"

// Redis implements a connection to a Redis server.
type Redis struct {
	c *redis.Client
}

// New connects to the server at url, ie. redis://localhost:6379/0.
func New(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: bad url %s: %w", url, err)
	}
	c := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()
	if err = c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: connecting to %s: %w", url, err)
	}
	return &Redis{c: c}, nil
}

// Close implements store.DB.
func (r *Redis) Close(context.Context) error {
	return r.c.Close()
}

// Table implements store.DB.
func (r *Redis) Table(name string) store.Table {
	return &table{c: r.c, hash: Prefix + ":" + name}
}

type table struct {
	c    *redis.Client
	hash string
}

func decode(k string, b string) (store.Record, error) {
	var r store.Record
	if err := json.Unmarshal([]byte(b), &r); err != nil {
		return nil, fmt.Errorf("redis: decoding %s: %w", k, err)
	}
	return r, nil
}

func (t *table) Get(ctx context.Context, k store.Key) (store.Record, error) {
	s, err := t.c.HGet(ctx, t.hash, k.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(k.String(), s)
}

func (t *table) GetAll(ctx context.Context) ([]store.Record, error) {
	m, err := t.c.HGetAll(ctx, t.hash).Result()
	if err != nil {
		return nil, err
	}
	all := make([]store.Record, 0, len(m))
	for k, s := range m {
		r, err := decode(k, s)
		if err != nil {
			return nil, err
		}
		all = append(all, r)
	}
	return all, nil
}

func encode(k store.Key, r store.Record) (string, error) {
	if k.IsZero() {
		return "", store.ErrEmptyKey
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("redis: encoding %s: %w", k, err)
	}
	return string(b), nil
}

func (t *table) Put(ctx context.Context, k store.Key, r store.Record) error {
	s, err := encode(k, r)
	if err != nil {
		return err
	}
	return t.c.HSet(ctx, t.hash, k.String(), s).Err()
}

// Update merges under WATCH so a concurrent writer makes it retry instead of losing fields.
func (t *table) Update(ctx context.Context, k store.Key, r store.Record) error {
	for i := 0; i < 3; i++ {
		err := t.c.Watch(ctx, func(tx *redis.Tx) error {
			old, err := tx.HGet(ctx, t.hash, k.String()).Result()
			if errors.Is(err, redis.Nil) {
				return store.ErrDataNotFound
			}
			if err != nil {
				return err
			}
			rec, err := decode(k.String(), old)
			if err != nil {
				return err
			}
			s, err := encode(k, store.Merge(rec, r))
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.HSet(ctx, t.hash, k.String(), s)
				return nil
			})
			return err
		}, t.hash)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return redis.TxFailedErr
}

func (t *table) Delete(ctx context.Context, k store.Key) error {
	return t.c.HDel(ctx, t.hash, k.String()).Err()
}

func (t *table) BatchPut(ctx context.Context, entries []store.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]interface{}, 0, 2*len(entries))
	for _, e := range entries {
		s, err := encode(e.Key, e.Record)
		if err != nil {
			return err
		}
		values = append(values, e.Key.String(), s)
	}
	return t.c.HSet(ctx, t.hash, values...).Err()
}

func (t *table) BatchDelete(ctx context.Context, keys []store.Key) error {
	if len(keys) == 0 {
		return nil
	}
	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = k.String()
	}
	return t.c.HDel(ctx, t.hash, fields...).Err()
}

func (t *table) BatchUpdate(ctx context.Context, entries []store.Entry) error {
	for _, e := range entries {
		if err := t.Update(ctx, e.Key, e.Record); err != nil {
			return err
		}
	}
	return nil
}
