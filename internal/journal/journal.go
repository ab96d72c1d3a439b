// Package journal keeps the append-only log of committed ledger events in
// LevelDB. The log is the source the in-memory store is rebuilt from.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/erazemk/rxledger/internal/model"
)

// Key layout:
//
//	ev/<seq big-endian uint64> => event JSON
//	meta/last                  => last seq, big-endian uint64
var (
	eventPrefix = []byte("ev/")
	lastKey     = []byte("meta/last")
)

// Journal is a LevelDB-backed event log.
type Journal struct {
	db *leveldb.DB
}

// Open opens or creates a journal at path.
func Open(path string) (*Journal, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// OpenMem opens a journal that lives in memory only.
func OpenMem() (*Journal, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("opening memory journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(eventPrefix)+8)
	copy(key, eventPrefix)
	binary.BigEndian.PutUint64(key[len(eventPrefix):], seq)
	return key
}

// Append stores events in one synced write. The first event must follow the
// last stored seq and the rest must be consecutive; otherwise nothing is
// written.
func (j *Journal) Append(_ context.Context, events []model.Event) error {
	last, err := j.LastSeq()
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	for _, ev := range events {
		if ev.Seq != last+1 {
			return fmt.Errorf("journal gap: last seq %d, got %d", last, ev.Seq)
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encoding event %d: %w", ev.Seq, err)
		}
		batch.Put(eventKey(ev.Seq), data)
		last = ev.Seq
	}
	if batch.Len() == 0 {
		return nil
	}

	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, last)
	batch.Put(lastKey, seq)
	if err := j.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("writing events up to %d: %w", last, err)
	}
	return nil
}

// LastSeq returns the seq of the newest stored event, or 0 if empty.
func (j *Journal) LastSeq() (uint64, error) {
	v, err := j.db.Get(lastKey, nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading last seq: %w", err)
	}
	return binary.BigEndian.Uint64(v), nil
}

// Since returns up to limit events with seq greater than after, oldest first.
// A limit of 0 or less returns all of them.
func (j *Journal) Since(after uint64, limit int) ([]model.Event, error) {
	rng := util.BytesPrefix(eventPrefix)
	rng.Start = eventKey(after + 1)

	iter := j.db.NewIterator(rng, nil)
	defer iter.Release()

	var events []model.Event
	for iter.Next() {
		var ev model.Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		events = append(events, ev)
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return events, nil
}

// Events returns the whole journal, oldest first.
func (j *Journal) Events() ([]model.Event, error) {
	return j.Since(0, 0)
}
