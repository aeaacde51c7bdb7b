package sink

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"v2x-sim/internal/telemetry"
)

// Bucket names used by the bolt archive.
var (
	bucketMessages     = []byte("messages")
	bucketNegotiations = []byte("negotiations")
	bucketVehicles     = []byte("vehicles")
)

// BoltWriter archives the event journal in an embedded bbolt database. Each
// bucket is keyed by an increasing sequence number.
type BoltWriter struct {
	db     *bbolt.DB
	states bool
}

// NewBoltWriter opens or creates the archive at path.
func NewBoltWriter(path string, states bool) (*BoltWriter, error) {
	db, err := bbolt.Open(path, 0o666, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt archive: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketMessages, bucketNegotiations, bucketVehicles} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bolt buckets: %w", err)
	}
	return &BoltWriter{db: db, states: states}, nil
}

func (w *BoltWriter) put(bucket []byte, vals ...any) error {
	return w.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		for _, v := range vals {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			var key [8]byte
			binary.BigEndian.PutUint64(key[:], seq)
			if err := b.Put(key[:], data); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteMessage archives a message row.
func (w *BoltWriter) WriteMessage(row telemetry.MessageRow) error {
	return w.put(bucketMessages, row)
}

// WriteMessages archives several message rows in one transaction.
func (w *BoltWriter) WriteMessages(rows []telemetry.MessageRow) error {
	vals := make([]any, len(rows))
	for i, r := range rows {
		vals[i] = r
	}
	return w.put(bucketMessages, vals...)
}

// WriteNegotiation archives a negotiation row.
func (w *BoltWriter) WriteNegotiation(row telemetry.NegotiationRow) error {
	return w.put(bucketNegotiations, row)
}

// WriteStates archives one tick of vehicle state, if enabled.
func (w *BoltWriter) WriteStates(rows []telemetry.VehicleRow) error {
	if !w.states || len(rows) == 0 {
		return nil
	}
	return w.put(bucketVehicles, rows)
}

// LastNegotiation returns the most recent negotiation row, if any.
func (w *BoltWriter) LastNegotiation() (telemetry.NegotiationRow, bool, error) {
	var row telemetry.NegotiationRow
	found := false
	err := w.db.View(func(tx *bbolt.Tx) error {
		_, v := tx.Bucket(bucketNegotiations).Cursor().Last()
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &row)
	})
	return row, found, err
}

// Messages returns every archived message row in insertion order.
func (w *BoltWriter) Messages() ([]telemetry.MessageRow, error) {
	var rows []telemetry.MessageRow
	err := w.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMessages).ForEach(func(_, v []byte) error {
			var r telemetry.MessageRow
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			rows = append(rows, r)
			return nil
		})
	})
	return rows, err
}

// Close closes the database.
func (w *BoltWriter) Close() error {
	return w.db.Close()
}
