// Package registry stores the named variables a session replicates.
//
// Ownership boundary:
// - every record's data buffer (always copied in and out)
// - insertion order, which is the serialization order
//
// Names are never removed. A registry lives exactly as long as its session.
package registry

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	ErrNotFound         = errors.New("registry: not found")
	ErrBufferTooSmall   = errors.New("registry: buffer too small")
	ErrCapacityExceeded = errors.New("registry: capacity exceeded")
	ErrInvalidName      = errors.New("registry: invalid name")
	ErrNameTooLong      = errors.New("registry: name too long")
)

const (
	DefaultMaxNameBytes = 1024
	DefaultMaxRecords   = 1024
)

// Limits bounds registry growth. MaxNameBytes counts the wire terminator.
type Limits struct {
	MaxNameBytes int
	MaxRecords   int
}

func DefaultLimits() Limits {
	return Limits{
		MaxNameBytes: DefaultMaxNameBytes,
		MaxRecords:   DefaultMaxRecords,
	}
}

// WithDefaults fills zero or negative limits with defaults.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxNameBytes <= 0 {
		l.MaxNameBytes = d.MaxNameBytes
	}
	if l.MaxRecords <= 0 {
		l.MaxRecords = d.MaxRecords
	}
	return l
}

// ValidateName checks a variable name against the wire constraints.
func (l Limits) ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidName, name)
	}
	if len(name)+1 > l.MaxNameBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrNameTooLong, len(name), l.MaxNameBytes-1)
	}
	return nil
}

// Record is one named variable.
type Record struct {
	Name string
	Data []byte
}

// Info describes a stored record without exposing its data.
type Info struct {
	Index int
	Name  string
	Size  int
}

// Registry stores records by name in insertion order.
type Registry struct {
	limits  Limits
	records []Record
	index   map[string]int
}

// New creates an empty registry.
func New(limits Limits) *Registry {
	return &Registry{
		limits: limits.WithDefaults(),
		index:  make(map[string]int),
	}
}

func (r *Registry) Limits() Limits {
	return r.limits
}

// Len returns the number of known names.
func (r *Registry) Len() int {
	return len(r.records)
}

// Set stores a copy of data under name, inserting the name if it is new.
func (r *Registry) Set(name string, data []byte) error {
	if i, ok := r.index[name]; ok {
		r.overwrite(i, data)
		return nil
	}
	if err := r.limits.ValidateName(name); err != nil {
		return err
	}
	if len(r.records) >= r.limits.MaxRecords {
		return fmt.Errorf("%w: %d records", ErrCapacityExceeded, r.limits.MaxRecords)
	}
	r.index[name] = len(r.records)
	r.records = append(r.records, Record{Name: name, Data: clone(data)})
	return nil
}

func (r *Registry) overwrite(i int, data []byte) {
	rec := &r.records[i]
	if len(rec.Data) != len(data) {
		rec.Data = make([]byte, len(data))
	}
	copy(rec.Data, data)
}

// Get copies the value stored under name into out and returns its size.
// out is left untouched on error.
func (r *Registry) Get(name string, out []byte) (int, error) {
	i, ok := r.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	rec := r.records[i]
	if len(out) < len(rec.Data) {
		return 0, fmt.Errorf("%w: %q needs %d bytes, have %d", ErrBufferTooSmall, name, len(rec.Data), len(out))
	}
	return copy(out, rec.Data), nil
}

// Size returns the stored length for name.
func (r *Registry) Size(name string) (int, bool) {
	i, ok := r.index[name]
	if !ok {
		return 0, false
	}
	return len(r.records[i].Data), true
}

// All yields records in insertion order. Yielded slices must not be modified
// or retained past the iteration step.
func (r *Registry) All() iter.Seq2[string, []byte] {
	return func(yield func(string, []byte) bool) {
		for _, rec := range r.records {
			if !yield(rec.Name, rec.Data) {
				return
			}
		}
	}
}

// List returns name/size pairs in insertion order.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.records))
	for i, rec := range r.records {
		out = append(out, Info{Index: i, Name: rec.Name, Size: len(rec.Data)})
	}
	return out
}

// Merge applies records with overwrite semantics. Names not present in
// records keep their values. The batch is validated up front so a rejected
// merge leaves the registry unchanged.
func (r *Registry) Merge(records []Record) error {
	added := make(map[string]struct{})
	for _, rec := range records {
		if _, ok := r.index[rec.Name]; ok {
			continue
		}
		if err := r.limits.ValidateName(rec.Name); err != nil {
			return err
		}
		added[rec.Name] = struct{}{}
	}
	if len(r.records)+len(added) > r.limits.MaxRecords {
		return fmt.Errorf(
			"%w: merge adds %d names to %d, limit %d",
			ErrCapacityExceeded,
			len(added),
			len(r.records),
			r.limits.MaxRecords,
		)
	}
	for _, rec := range records {
		if err := r.Set(rec.Name, rec.Data); err != nil {
			return err
		}
	}
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
