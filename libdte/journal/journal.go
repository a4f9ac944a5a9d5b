// Package journal persists engine events in a badger-backed ring, keeping
// only the most recent entries. A Journal satisfies godte.Notifier, so an
// engine can be pointed at one directly.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"

	"github.com/dte-systems/go-dte/godte"
)

// DefaultMaxEvents bounds retention when Opts.MaxEvents is unset.
const DefaultMaxEvents = 100

type Opts struct {

	// DbPathName is the file system path of the db; empty means in-memory.
	DbPathName string

	// ReadOnly opens an existing journal for reading only.
	ReadOnly bool

	// MaxEvents caps how many entries are retained (0 means DefaultMaxEvents).
	MaxEvents int
}

func DefaultOpts() Opts {
	return Opts{
		MaxEvents: DefaultMaxEvents,
	}
}

// Entry is one journaled event plus its sequence number and arrival time.
type Entry struct {
	godte.Event
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
}

type Journal struct {
	db       *badger.DB
	mu       sync.Mutex
	head     uint64 // seq of the oldest retained entry
	tail     uint64 // seq to assign next
	max      int
	readOnly bool
}

var _ godte.Notifier = (*Journal)(nil)

const entryPrefix = byte(0x01)

func seqKey(seq uint64) []byte {
	var key [9]byte
	key[0] = entryPrefix
	binary.BigEndian.PutUint64(key[1:], seq)
	return key[:]
}

// Open creates or reopens a journal per the given opts.
func (opts Opts) Open() (*Journal, error) {
	var dbOpts badger.Options
	if opts.DbPathName == "" {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dbOpts = badger.DefaultOptions(opts.DbPathName)
		dbOpts.ReadOnly = opts.ReadOnly
	}
	dbOpts.Logger = nil

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open journal db")
	}

	j := &Journal{
		db:       db,
		max:      opts.MaxEvents,
		readOnly: opts.ReadOnly,
	}
	if j.max <= 0 {
		j.max = DefaultMaxEvents
	}
	if err := j.recoverBounds(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// recoverBounds scans the existing key range so Append continues the
// sequence where a previous session left off.
func (j *Journal) recoverBounds() error {
	return j.db.View(func(txn *badger.Txn) error {
		itr := txn.NewIterator(badger.DefaultIteratorOptions)
		defer itr.Close()

		prefix := []byte{entryPrefix}
		first := true
		for itr.Seek(prefix); itr.ValidForPrefix(prefix); itr.Next() {
			seq := binary.BigEndian.Uint64(itr.Item().Key()[1:])
			if first {
				j.head = seq
				first = false
			}
			j.tail = seq + 1
		}
		if first {
			j.head, j.tail = 0, 0
		}
		return nil
	})
}

// Notify implements godte.Notifier. Persistence failures are logged, never
// surfaced, so a sick journal cannot stall an engine.
func (j *Journal) Notify(ev godte.Event) {
	if err := j.Append(ev); err != nil {
		klog.Errorf("failed to journal event: %v", err)
	}
}

// Append stores ev and drops the oldest entries beyond the retention cap.
func (j *Journal) Append(ev godte.Event) error {
	if j.readOnly {
		return errors.New("journal is read-only")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entry := Entry{
		Event: ev,
		Seq:   j.tail,
		Time:  time.Now(),
	}
	val, err := json.Marshal(&entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal journal entry")
	}

	// head is committed only after the txn succeeds; badger may retry or
	// abort the closure, so it must not touch journal state directly.
	newHead := j.head
	err = j.db.Update(func(txn *badger.Txn) error {
		newHead = j.head
		if err := txn.Set(seqKey(entry.Seq), val); err != nil {
			return err
		}
		for j.tail+1-newHead > uint64(j.max) {
			if err := txn.Delete(seqKey(newHead)); err != nil {
				return err
			}
			newHead++
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "journal append failed")
	}
	j.head = newHead
	j.tail++
	return nil
}

// Count returns how many entries are currently retained.
func (j *Journal) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return int(j.tail - j.head)
}

// Recent returns up to n of the newest entries in chronological order.
func (j *Journal) Recent(n int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries := make([]Entry, 0, n)
	err := j.db.View(func(txn *badger.Txn) error {
		itrOpts := badger.DefaultIteratorOptions
		itrOpts.Reverse = true
		itr := txn.NewIterator(itrOpts)
		defer itr.Close()

		seekKey := seqKey(^uint64(0))
		prefix := []byte{entryPrefix}
		for itr.Seek(seekKey); itr.ValidForPrefix(prefix) && len(entries) < n; itr.Next() {
			var entry Entry
			err := itr.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return errors.Wrap(err, "failed to decode journal entry")
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// reverse iteration yielded newest first
	for i, k := 0, len(entries)-1; i < k; i, k = i+1, k-1 {
		entries[i], entries[k] = entries[k], entries[i]
	}
	return entries, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
