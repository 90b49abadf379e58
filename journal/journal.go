// Package journal records handled packets in a pebble store so a session's
// traffic can be inspected after the fact.
//
// Keys are ksuids, strictly increasing within a journal, so iteration order
// is append order. Values are entries
// encoded with the object codec; the packet itself is kept as its binary
// body and decoded on demand through the catalog.
package journal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"

	"liquidnet/codec"
	"liquidnet/packet"
)

var ErrNotFound = errors.New("journal: entry not found")

// Entry is one recorded packet.
type Entry struct {
	ID       ksuid.KSUID `wire:"-"`
	Session  string
	Seq      uint32
	Bound    packet.Bound
	PacketID uint8
	Payload  []byte
	Error    *string
}

// Time is when the entry was appended.
func (e *Entry) Time() time.Time {
	return e.ID.Time()
}

// Packet decodes the recorded payload.
func (e *Entry) Packet(cat *packet.Catalog) (packet.Packet, error) {
	return cat.Decode(e.Bound, e.PacketID, e.Payload)
}

type Options struct {
	// Sync makes every Append durable before it returns.
	Sync bool
}

type Journal struct {
	db    *pebble.DB
	codec *codec.ObjectCodec
	write *pebble.WriteOptions

	mu   sync.Mutex
	last ksuid.KSUID
}

func Open(path string, opts Options) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	j := &Journal{db: db, codec: codec.NewObjectCodec(nil), write: pebble.NoSync}
	if opts.Sync {
		j.write = pebble.Sync
	}
	if err := j.loadLast(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) loadLast() error {
	iter, err := j.db.NewIter(nil)
	if err != nil {
		return err
	}
	if iter.Last() {
		if id, err := ksuid.FromBytes(iter.Key()); err == nil {
			j.last = id
		}
	}
	return iter.Close()
}

// Append stores e under a fresh id and returns it. e.ID is set as well.
func (j *Journal) Append(e *Entry) (ksuid.KSUID, error) {
	data, err := j.codec.Marshal(e)
	if err != nil {
		return ksuid.Nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	// ksuids of the same second sort randomly
	id := ksuid.New()
	if ksuid.Compare(id, j.last) <= 0 {
		id = j.last.Next()
	}
	if err := j.db.Set(id.Bytes(), data, j.write); err != nil {
		return ksuid.Nil, err
	}
	j.last = id
	e.ID = id
	return id, nil
}

func (j *Journal) Get(id ksuid.KSUID) (*Entry, error) {
	data, closer, err := j.db.Get(id.Bytes())
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return j.decode(id.Bytes(), data)
}

// Scan calls fn for every entry in append order. An error from fn stops the
// scan and is returned.
func (j *Journal) Scan(fn func(*Entry) error) error {
	return j.scan(nil, fn)
}

// ScanSince is Scan starting at the first entry appended at or after t.
func (j *Journal) ScanSince(t time.Time, fn func(*Entry) error) error {
	start, err := ksuid.FromParts(t, make([]byte, 16))
	if err != nil {
		return err
	}
	return j.scan(start.Bytes(), fn)
}

func (j *Journal) scan(lower []byte, fn func(*Entry) error) (err error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: lower})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := iter.Close(); err == nil {
			err = cerr
		}
	}()
	for iter.First(); iter.Valid(); iter.Next() {
		e, err := j.decode(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (j *Journal) decode(key, data []byte) (*Entry, error) {
	id, err := ksuid.FromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("journal: bad key %x: %w", key, err)
	}
	var e Entry
	if err := j.codec.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("journal: entry %s: %w", id, err)
	}
	e.ID = id
	return &e, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
