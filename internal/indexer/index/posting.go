package index

import (
	"encoding/json"
	"iter"

	"github.com/RoaringBitmap/roaring"
)

// PostingSet is an ordered set of uint32 values, used both for a
// document's occurrence keys and for a key's documents. The zero value is
// an empty set. Sets returned by MemoryIndex are private copies.
type PostingSet struct {
	bm *roaring.Bitmap
}

func NewPostingSet(values ...uint32) PostingSet {
	return PostingSet{bm: roaring.BitmapOf(values...)}
}

// FromBitmap wraps bm without copying.
func FromBitmap(bm *roaring.Bitmap) PostingSet {
	return PostingSet{bm: bm}
}

// Bitmap returns the underlying bitmap, allocating one for the zero value.
func (s PostingSet) Bitmap() *roaring.Bitmap {
	if s.bm == nil {
		return roaring.New()
	}
	return s.bm
}

func (s PostingSet) Len() int {
	if s.bm == nil {
		return 0
	}
	return int(s.bm.GetCardinality())
}

func (s PostingSet) IsEmpty() bool {
	return s.bm == nil || s.bm.IsEmpty()
}

func (s PostingSet) Contains(v uint32) bool {
	return s.bm != nil && s.bm.Contains(v)
}

// Values returns the members in ascending order.
func (s PostingSet) Values() []uint32 {
	if s.bm == nil {
		return []uint32{}
	}
	return s.bm.ToArray()
}

// All iterates the members in ascending order.
func (s PostingSet) All() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		if s.bm == nil {
			return
		}
		it := s.bm.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}

func (s PostingSet) Equal(o PostingSet) bool {
	if s.IsEmpty() || o.IsEmpty() {
		return s.IsEmpty() == o.IsEmpty()
	}
	return s.bm.Equals(o.bm)
}

func (s PostingSet) Clone() PostingSet {
	if s.bm == nil {
		return PostingSet{}
	}
	return PostingSet{bm: s.bm.Clone()}
}

func Union(a, b PostingSet) PostingSet {
	return PostingSet{bm: roaring.Or(a.Bitmap(), b.Bitmap())}
}

func Intersection(a, b PostingSet) PostingSet {
	if a.IsEmpty() || b.IsEmpty() {
		return PostingSet{}
	}
	return PostingSet{bm: roaring.And(a.bm, b.bm)}
}

// Difference returns the members of a that are not in b.
func Difference(a, b PostingSet) PostingSet {
	if a.IsEmpty() {
		return PostingSet{}
	}
	return PostingSet{bm: roaring.AndNot(a.bm, b.Bitmap())}
}

// MultiUnion unions any number of sets in one pass.
func MultiUnion(sets ...PostingSet) PostingSet {
	bms := make([]*roaring.Bitmap, 0, len(sets))
	for _, s := range sets {
		if !s.IsEmpty() {
			bms = append(bms, s.bm)
		}
	}
	switch len(bms) {
	case 0:
		return PostingSet{}
	case 1:
		return PostingSet{bm: bms[0].Clone()}
	}
	return PostingSet{bm: roaring.FastOr(bms...)}
}

// MarshalBinary uses the portable roaring serialization.
func (s PostingSet) MarshalBinary() ([]byte, error) {
	return s.Bitmap().ToBytes()
}

func (s *PostingSet) UnmarshalBinary(data []byte) error {
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return err
	}
	s.bm = bm
	return nil
}

// MarshalJSON encodes the set as an ascending array.
func (s PostingSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *PostingSet) UnmarshalJSON(data []byte) error {
	var values []uint32
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewPostingSet(values...)
	return nil
}

// Entry is one forward-map row.
type Entry struct {
	DocID uint32
	Keys  PostingSet
}
