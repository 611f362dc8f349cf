package handlers

import (
	"fmt"
	"sync"
)

// ErrorKind classifies non-fatal failures so each tier can decide how much
// work to skip.
type ErrorKind int

const (
	// ParseError: a field payload could not become a polygon. Skip the field.
	ParseError ErrorKind = iota
	// TopologyError: GEOS failed on a pair. Skip the pair.
	TopologyError
	// StoreError: a read or write against the record store failed.
	StoreError
	// UnexpectedError: anything else caught by the per-record guard.
	UnexpectedError
)

func (k ErrorKind) String() string {
	switch k {
	case ParseError:
		return "parse"
	case TopologyError:
		return "topology"
	case StoreError:
		return "store"
	case UnexpectedError:
		return "unexpected"
	}
	return "unknown"
}

// DetectionError carries the kind and the record it belongs to.
type DetectionError struct {
	Kind     ErrorKind
	RecordID string
	Field    string
	Err      error
}

func (e *DetectionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s error on record %s field %s: %v", e.Kind, e.RecordID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s error on record %s: %v", e.Kind, e.RecordID, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, recordID, field string, err error) *DetectionError {
	return &DetectionError{Kind: kind, RecordID: recordID, Field: field, Err: err}
}

// Diagnostic is one entry in the diagnostic sink.
type Diagnostic struct {
	RecordID string    `json:"record_id"`
	Kind     ErrorKind `json:"-"`
	KindName string    `json:"kind"`
	Field    string    `json:"field,omitempty"`
	Message  string    `json:"message"`
}

// Diagnostics collects non-fatal errors. Safe for concurrent use.
// Identical entries are kept once: targets are re-parsed for every source
// record and would otherwise repeat the same parse error many times.
type Diagnostics struct {
	mu      sync.Mutex
	entries []Diagnostic
	seen    map[Diagnostic]struct{}
}

func (d *Diagnostics) Add(err *DetectionError) {
	if d == nil || err == nil {
		return
	}
	msg := ""
	if err.Err != nil {
		msg = err.Err.Error()
	}
	entry := Diagnostic{
		RecordID: err.RecordID,
		Kind:     err.Kind,
		KindName: err.Kind.String(),
		Field:    err.Field,
		Message:  msg,
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.addLocked(entry) {
		observeDiagnostic(err.Kind)
	}
}

func (d *Diagnostics) addLocked(entry Diagnostic) bool {
	if d.seen == nil {
		d.seen = make(map[Diagnostic]struct{})
	}
	if _, dup := d.seen[entry]; dup {
		return false
	}
	d.seen[entry] = struct{}{}
	d.entries = append(d.entries, entry)
	return true
}

func (d *Diagnostics) Entries() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Diagnostic, len(d.entries))
	copy(out, d.entries)
	return out
}

func (d *Diagnostics) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// CountByKind is used for the end-of-run summary.
func (d *Diagnostics) CountByKind() map[ErrorKind]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	counts := make(map[ErrorKind]int)
	for _, e := range d.entries {
		counts[e.Kind]++
	}
	return counts
}

func (d *Diagnostics) merge(other *Diagnostics) {
	if other == nil {
		return
	}
	entries := other.Entries()
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range entries {
		d.addLocked(e)
	}
}
