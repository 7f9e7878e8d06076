package history

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// DefaultJournalLimit is the number of outcomes kept on disk.
const DefaultJournalLimit = 10_000

var bucketOutcomes = []byte("outcomes")

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// BoltJournal stores outcomes in a bbolt bucket keyed by a big-endian
// sequence number, so cursor order is insertion order.
type BoltJournal struct {
	db     *bbolt.DB
	limit  int
	logger *zap.Logger
}

// OpenBoltJournal opens (or creates) the journal at path. At most limit
// outcomes are retained; older ones are pruned on append.
func OpenBoltJournal(path string, limit int, logger *zap.Logger) (*BoltJournal, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOutcomes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	if limit < 1 {
		limit = DefaultJournalLimit
	}

	j := &BoltJournal{db: db, limit: limit, logger: logger}
	logger.Info("outcome journal opened", zap.String("path", path), zap.Int("outcomes", j.Count()))
	return j, nil
}

// Append implements Journal.
func (j *BoltJournal) Append(o Outcome) error {
	data, err := encMode.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	pruned := 0
	err = j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketOutcomes)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		if err := b.Put(key[:], data); err != nil {
			return err
		}

		// Keys are contiguous, so the oldest excess entries are the first ones.
		excess := count(b) - j.limit
		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		pruned = len(stale)
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist outcome: %w", err)
	}
	if pruned > 0 {
		j.logger.Debug("pruned journal", zap.Int("removed", pruned))
	}
	return nil
}

// Recent returns up to n outcomes, newest first. n <= 0 returns all of them.
func (j *BoltJournal) Recent(n int) ([]Outcome, error) {
	var out []Outcome
	err := j.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketOutcomes).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if n > 0 && len(out) >= n {
				break
			}
			var o Outcome
			if err := cbor.Unmarshal(v, &o); err != nil {
				return fmt.Errorf("decode outcome %x: %w", k, err)
			}
			out = append(out, o)
		}
		return nil
	})
	return out, err
}

// Count returns the number of journaled outcomes.
func (j *BoltJournal) Count() int {
	n := 0
	j.db.View(func(tx *bbolt.Tx) error {
		n = count(tx.Bucket(bucketOutcomes))
		return nil
	})
	return n
}

// Close closes the database.
func (j *BoltJournal) Close() error {
	return j.db.Close()
}

func count(b *bbolt.Bucket) int {
	c := b.Cursor()
	first, _ := c.First()
	if first == nil {
		return 0
	}
	last, _ := c.Last()
	return int(binary.BigEndian.Uint64(last)-binary.BigEndian.Uint64(first)) + 1
}
