package sink

import (
	"errors"
	"io"

	"v2x-sim/internal/telemetry"
)

// MultiWriter fans events out to several writers. A failing writer does not
// stop delivery to the others; errors are joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Add appends a writer.
func (mw *MultiWriter) Add(w Writer) { mw.writers = append(mw.writers, w) }

// Writers returns a copy of the configured writers.
func (mw *MultiWriter) Writers() []Writer { return append([]Writer(nil), mw.writers...) }

// Len returns the number of writers.
func (mw *MultiWriter) Len() int { return len(mw.writers) }

// WriteMessage sends a message row to all writers.
func (mw *MultiWriter) WriteMessage(row telemetry.MessageRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteMessage(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteMessages sends several message rows, using batch writes if supported.
func (mw *MultiWriter) WriteMessages(rows []telemetry.MessageRow) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchMessageWriter); ok {
			if err := bw.WriteMessages(rows); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteMessage(r); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WriteNegotiation sends a negotiation row to all writers.
func (mw *MultiWriter) WriteNegotiation(row telemetry.NegotiationRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteNegotiation(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteStates forwards vehicle state to writers that accept it.
func (mw *MultiWriter) WriteStates(rows []telemetry.VehicleRow) error {
	var errs []error
	for _, w := range mw.writers {
		if sw, ok := w.(StateWriter); ok {
			if err := sw.WriteStates(rows); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that implements io.Closer.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
