package index

import (
	"iter"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/temporal"
	"github.com/RoaringBitmap/roaring"
	"github.com/samber/mo"
)

// MemoryIndex keeps the forward map (document to keys) and the reverse map
// (key to documents) in step. A key with no documents is removed.
type MemoryIndex struct {
	mu         sync.RWMutex
	forward    map[uint32]*roaring.Bitmap
	reverse    map[temporal.Key]*roaring.Bitmap
	keys       *roaring.Bitmap
	generation atomic.Uint64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		forward: make(map[uint32]*roaring.Bitmap),
		reverse: make(map[temporal.Key]*roaring.Bitmap),
		keys:    roaring.New(),
	}
}

// Index replaces the keys of docID and reports whether anything changed.
// Only keys that were added or dropped touch the reverse map. An empty key
// set removes the document.
func (m *MemoryIndex) Index(docID uint32, keys PostingSet) bool {
	next := keys.Bitmap().Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, exists := m.forward[docID]
	if !exists && next.IsEmpty() {
		return false
	}
	if exists && prev.Equals(next) {
		return false
	}

	added := next
	if exists {
		removed := roaring.AndNot(prev, next)
		it := removed.Iterator()
		for it.HasNext() {
			m.removePosting(temporal.Key(it.Next()), docID)
		}
		added = roaring.AndNot(next, prev)
	}
	it := added.Iterator()
	for it.HasNext() {
		m.addPosting(temporal.Key(it.Next()), docID)
	}

	if next.IsEmpty() {
		delete(m.forward, docID)
	} else {
		m.forward[docID] = next
	}
	m.generation.Add(1)
	return true
}

// Unindex removes docID everywhere. Unknown documents are ignored.
func (m *MemoryIndex) Unindex(docID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, exists := m.forward[docID]
	if !exists {
		return false
	}
	it := prev.Iterator()
	for it.HasNext() {
		m.removePosting(temporal.Key(it.Next()), docID)
	}
	delete(m.forward, docID)
	m.generation.Add(1)
	return true
}

func (m *MemoryIndex) addPosting(key temporal.Key, docID uint32) {
	docs, ok := m.reverse[key]
	if !ok {
		docs = roaring.New()
		m.reverse[key] = docs
		m.keys.Add(uint32(key))
	}
	docs.Add(docID)
}

func (m *MemoryIndex) removePosting(key temporal.Key, docID uint32) {
	docs, ok := m.reverse[key]
	if !ok {
		return
	}
	docs.Remove(docID)
	if docs.IsEmpty() {
		delete(m.reverse, key)
		m.keys.Remove(uint32(key))
	}
}

func (m *MemoryIndex) KeysFor(docID uint32) (PostingSet, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys, ok := m.forward[docID]
	if !ok {
		return PostingSet{}, false
	}
	return PostingSet{bm: keys.Clone()}, true
}

func (m *MemoryIndex) DocumentsFor(key temporal.Key) (PostingSet, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, ok := m.reverse[key]
	if !ok {
		return PostingSet{}, false
	}
	return PostingSet{bm: docs.Clone()}, true
}

// Range iterates the reverse map in ascending key order between the
// optional inclusive bounds.
func (m *MemoryIndex) Range(lo, hi mo.Option[temporal.Key]) iter.Seq2[temporal.Key, PostingSet] {
	return func(yield func(temporal.Key, PostingSet) bool) {
		type row struct {
			key  temporal.Key
			docs PostingSet
		}
		m.mu.RLock()
		var rows []row
		m.scanKeys(lo, hi, func(k temporal.Key) {
			rows = append(rows, row{key: k, docs: PostingSet{bm: m.reverse[k].Clone()}})
		})
		m.mu.RUnlock()

		for _, r := range rows {
			if !yield(r.key, r.docs) {
				return
			}
		}
	}
}

// UnionRange is the union of every document set in the key range, computed
// without copying each set first.
func (m *MemoryIndex) UnionRange(lo, hi mo.Option[temporal.Key]) PostingSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bms []*roaring.Bitmap
	m.scanKeys(lo, hi, func(k temporal.Key) {
		bms = append(bms, m.reverse[k])
	})
	if len(bms) == 0 {
		return PostingSet{}
	}
	return PostingSet{bm: roaring.FastOr(bms...)}
}

// UniqueKeys lists the keys present in the range in ascending order.
func (m *MemoryIndex) UniqueKeys(lo, hi mo.Option[temporal.Key]) []temporal.Key {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []temporal.Key{}
	m.scanKeys(lo, hi, func(k temporal.Key) {
		out = append(out, k)
	})
	return out
}

// scanKeys must be called with mu held.
func (m *MemoryIndex) scanKeys(lo, hi mo.Option[temporal.Key], fn func(temporal.Key)) {
	it := m.keys.Iterator()
	if l, ok := lo.Get(); ok {
		it.AdvanceIfNeeded(uint32(l))
	}
	h, bounded := hi.Get()
	for it.HasNext() {
		k := temporal.Key(it.Next())
		if bounded && k > h {
			return
		}
		fn(k)
	}
}

func (m *MemoryIndex) DocumentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.forward)
}

func (m *MemoryIndex) KeyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reverse)
}

// Generation increases on every change.
func (m *MemoryIndex) Generation() uint64 {
	return m.generation.Load()
}

// Snapshot copies the forward map ordered by document id.
func (m *MemoryIndex) Snapshot() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]Entry, 0, len(m.forward))
	for docID, keys := range m.forward {
		entries = append(entries, Entry{DocID: docID, Keys: PostingSet{bm: keys.Clone()}})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DocID < entries[j].DocID
	})
	return entries
}

// Restore replaces the contents with entries, rebuilding the reverse map.
func (m *MemoryIndex) Restore(entries []Entry) {
	forward := make(map[uint32]*roaring.Bitmap, len(entries))
	for _, e := range entries {
		if e.Keys.IsEmpty() {
			continue
		}
		if prev, ok := forward[e.DocID]; ok {
			prev.Or(e.Keys.bm)
			continue
		}
		forward[e.DocID] = e.Keys.bm.Clone()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.forward = forward
	m.reverse = make(map[temporal.Key]*roaring.Bitmap)
	m.keys = roaring.New()
	for docID, keys := range forward {
		it := keys.Iterator()
		for it.HasNext() {
			m.addPosting(temporal.Key(it.Next()), docID)
		}
	}
	m.generation.Add(1)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forward = make(map[uint32]*roaring.Bitmap)
	m.reverse = make(map[temporal.Key]*roaring.Bitmap)
	m.keys = roaring.New()
	m.generation.Add(1)
}
