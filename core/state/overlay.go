package state

import (
	"bytes"
	"errors"
	"sort"
	"strings"

	"creditbridge/storage"
)

var errOverlayClosed = errors.New("state: overlay already committed or discarded")

// Overlay buffers writes over a base database. Reads observe the buffered
// writes first. Nothing reaches the base until Commit, which applies every
// buffered write in one atomic batch.
type Overlay struct {
	base    storage.Database
	writes  map[string][]byte
	deletes map[string]struct{}
	closed  bool
}

// NewOverlay starts a write buffer on top of base.
func NewOverlay(base storage.Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	if o.closed {
		return nil, errOverlayClosed
	}
	k := string(key)
	if _, gone := o.deletes[k]; gone {
		return nil, storage.ErrNotFound
	}
	if v, ok := o.writes[k]; ok {
		return bytes.Clone(v), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Put(key []byte, value []byte) error {
	if o.closed {
		return errOverlayClosed
	}
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = bytes.Clone(value)
	return nil
}

func (o *Overlay) Delete(key []byte) error {
	if o.closed {
		return errOverlayClosed
	}
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

// Iterate merges buffered writes with the base contents in key order.
func (o *Overlay) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	if o.closed {
		return errOverlayClosed
	}
	merged := make(map[string][]byte)
	err := o.base.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	})
	if err != nil {
		return err
	}
	p := string(prefix)
	for k, v := range o.writes {
		if strings.HasPrefix(k, p) {
			merged[k] = v
		}
	}
	for k := range o.deletes {
		delete(merged, k)
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), bytes.Clone(merged[k])) {
			return nil
		}
	}
	return nil
}

// Dirty reports the number of pending writes and deletes.
func (o *Overlay) Dirty() int {
	return len(o.writes) + len(o.deletes)
}

// Commit flushes buffered changes to the base database atomically.
func (o *Overlay) Commit() error {
	if o.closed {
		return errOverlayClosed
	}
	batch := storage.NewBatch()
	keys := make([]string, 0, len(o.writes))
	for k := range o.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		batch.Put([]byte(k), o.writes[k])
	}
	dels := make([]string, 0, len(o.deletes))
	for k := range o.deletes {
		dels = append(dels, k)
	}
	sort.Strings(dels)
	for _, k := range dels {
		batch.Delete([]byte(k))
	}
	if err := o.base.Write(batch); err != nil {
		return err
	}
	o.closed = true
	return nil
}

// Discard drops every buffered change.
func (o *Overlay) Discard() {
	o.writes = nil
	o.deletes = nil
	o.closed = true
}
