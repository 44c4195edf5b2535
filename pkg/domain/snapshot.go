package domain

import (
	"encoding/json"
	"sort"
)

// Snapshot is an ordered mapping from stable keys to records. Records are
// held by value; every accessor hands out copies so indices built on top of
// a snapshot can only refer to records by key.
type Snapshot struct {
	order   []Key
	records map[Key]MouseRecord
}

// NewSnapshot builds a snapshot from records, preserving their order. The
// record's Key field is authoritative.
func NewSnapshot(records ...MouseRecord) Snapshot {
	s := Snapshot{records: make(map[Key]MouseRecord, len(records))}
	for _, r := range records {
		s.Put(r)
	}
	return s
}

// Len returns the number of records.
func (s *Snapshot) Len() int { return len(s.order) }

// Put inserts or replaces the record stored under r.Key.
func (s *Snapshot) Put(r MouseRecord) {
	if s.records == nil {
		s.records = make(map[Key]MouseRecord)
	}
	if _, ok := s.records[r.Key]; !ok {
		s.order = append(s.order, r.Key)
	}
	s.records[r.Key] = r.Clone()
}

// Get returns a copy of the record stored under key.
func (s *Snapshot) Get(key Key) (MouseRecord, bool) {
	r, ok := s.records[key]
	if !ok {
		return MouseRecord{}, false
	}
	return r.Clone(), true
}

// Update applies fn to the record stored under key. The key and ID of the
// record cannot be changed through Update.
func (s *Snapshot) Update(key Key, fn func(*MouseRecord) error) (MouseRecord, error) {
	r, ok := s.records[key]
	if !ok {
		return MouseRecord{}, ErrNotFound{Key: key}
	}
	cp := r.Clone()
	if err := fn(&cp); err != nil {
		return MouseRecord{}, err
	}
	cp.Key = r.Key
	if r.ID != "" {
		cp.ID = r.ID
	}
	s.records[key] = cp.Clone()
	return cp.Clone(), nil
}

// Keys returns the record keys in snapshot order.
func (s *Snapshot) Keys() []Key {
	return append([]Key(nil), s.order...)
}

// Records returns copies of all records in snapshot order.
func (s *Snapshot) Records() []MouseRecord {
	out := make([]MouseRecord, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.records[k].Clone())
	}
	return out
}

// FindByID returns the record carrying the given identifier.
func (s *Snapshot) FindByID(id string) (MouseRecord, bool) {
	if id == "" {
		return MouseRecord{}, false
	}
	for _, k := range s.order {
		if r := s.records[k]; r.ID == id {
			return r.Clone(), true
		}
	}
	return MouseRecord{}, false
}

// IDs returns the set of non-blank identifiers present in the snapshot.
func (s *Snapshot) IDs() map[string]struct{} {
	out := make(map[string]struct{}, len(s.order))
	for _, k := range s.order {
		if id := s.records[k].ID; id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

// NextKey returns a key one past the largest key in use.
func (s *Snapshot) NextKey() Key {
	next := Key(0)
	for _, k := range s.order {
		if k >= next {
			next = k + 1
		}
	}
	return next
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() Snapshot {
	cp := Snapshot{
		order:   append([]Key(nil), s.order...),
		records: make(map[Key]MouseRecord, len(s.records)),
	}
	for k, r := range s.records {
		cp.records[k] = r.Clone()
	}
	return cp
}

// SortedByCage returns copies of all records ordered by persisted cage, then key.
func (s *Snapshot) SortedByCage() []MouseRecord {
	out := s.Records()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OriginalCage != out[j].OriginalCage {
			return out[i].OriginalCage < out[j].OriginalCage
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// MarshalJSON encodes the snapshot as an ordered list of records.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Records())
}

// UnmarshalJSON decodes an ordered list of records.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var records []MouseRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	*s = NewSnapshot(records...)
	return nil
}
