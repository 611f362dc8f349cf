package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt keeps records in a single bbolt file. bbolt takes an exclusive file
// lock per process, so all handles share one *bolt.DB.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

type boltDocument struct {
	Fields map[string]any `json:"fields"`
	Log    *LogEntry      `json:"log,omitempty"`
}

func OpenBolt(path string, bucket string) (*Bolt, error) {
	if bucket == "" {
		bucket = "polygons"
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	b := &Bolt{db: db, bucket: []byte(bucket)}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(b.bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return b, nil
}

func (b *Bolt) Open(ctx context.Context) (RecordStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &boltHandle{b: b}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

type boltHandle struct {
	b      *Bolt
	closed atomic.Bool
}

// FindAll iterates in key order; keys are zero-padded sequence numbers so
// that order is insertion order.
func (h *boltHandle) FindAll(ctx context.Context) ([]GeometryRecord, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	var records []GeometryRecord
	err := h.b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(h.b.bucket).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc boltDocument
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			records = append(records, GeometryRecord{ID: string(k), Fields: doc.Fields, Log: doc.Log})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (h *boltHandle) UpdateLog(ctx context.Context, id string, entry LogEntry) error {
	if h.closed.Load() {
		return ErrClosed
	}
	return h.b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(h.b.bucket)
		raw := bkt.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		var doc boltDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode record %s: %w", id, err)
		}
		doc.Log = &entry
		out, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(id), out)
	})
}

func (h *boltHandle) InsertRecord(ctx context.Context, fields map[string]any) (string, error) {
	if h.closed.Load() {
		return "", ErrClosed
	}
	var id string
	err := h.b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(h.b.bucket)
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		id = fmt.Sprintf("%020d", seq)
		out, err := json.Marshal(boltDocument{Fields: fields})
		if err != nil {
			return err
		}
		return bkt.Put([]byte(id), out)
	})
	return id, err
}

func (h *boltHandle) Close(ctx context.Context) error {
	if h.closed.Swap(true) {
		return ErrClosed
	}
	return nil
}
