package prompeg

import (
	"github.com/google/btree"
	"github.com/pkg/errors"
)

// ErrDuplicateIndex is returned by (*store).insert when a packet with
// the same index is already present. Decoder.AddPacket treats it as a
// no-op, so a duplicate add is externally harmless.
var ErrDuplicateIndex = errors.New("prompeg: duplicate packet index")

// storedPacket is one entry of a store's ordered set, keyed by a 16-bit
// sequence number (media) or SN Base low bits (FEC). Comparison is plain
// unsigned <, with no wraparound awareness (see DESIGN.md Open
// Questions).
type storedPacket struct {
	index uint16
	bytes []byte
}

// Less implements btree.Item.
func (p *storedPacket) Less(than btree.Item) bool {
	if k, ok := than.(packetKey); ok {
		return p.index < uint16(k)
	}
	return p.index < than.(*storedPacket).index
}

type packetKey uint16

// Less implements btree.Item for a bare lookup key.
func (k packetKey) Less(than btree.Item) bool {
	if o, ok := than.(packetKey); ok {
		return uint16(k) < uint16(o)
	}
	return uint16(k) < than.(*storedPacket).index
}

// store is one of the Decoder's three ordered sets (media, row-FEC,
// column-FEC packets), backed by google/btree as an ordered map with
// range enumeration.
type store struct {
	tree  *btree.BTree
	count int
}

func newStore() *store {
	return &store{tree: btree.New(32)}
}

// insert allocates and stores bytes under index. Returns
// ErrDuplicateIndex if index is already present (see ErrDuplicateIndex
// doc).
func (s *store) insert(index uint16, bytes []byte) error {
	item := &storedPacket{index: index, bytes: bytes}
	if existing := s.tree.ReplaceOrInsert(item); existing != nil {
		// Restore the previous entry: ReplaceOrInsert already swapped it
		// out, and duplicates must be rejected rather than overwritten.
		s.tree.ReplaceOrInsert(existing)
		return ErrDuplicateIndex
	}
	s.count++
	return nil
}

// find returns the packet at index, or nil if absent.
func (s *store) find(index uint16) *storedPacket {
	item := s.tree.Get(packetKey(index))
	if item == nil {
		return nil
	}
	return item.(*storedPacket)
}

// remove deletes the packet at index, if present.
func (s *store) remove(index uint16) {
	if s.tree.Delete(packetKey(index)) != nil {
		s.count--
	}
}

// firstAtOrAfter returns the smallest-indexed packet with index >= min,
// or nil if none. Plain uint16 ordering, no wraparound. Used by the
// forced-drop read-out path to find the next packet past an
// unrecoverable gap.
func (s *store) firstAtOrAfter(min uint16) *storedPacket {
	var found *storedPacket
	s.tree.Ascend(func(it btree.Item) bool {
		p := it.(*storedPacket)
		if p.index < min {
			return true
		}
		found = p
		return false
	})
	return found
}

// pruneUpTo removes every entry with index <= boundary.
func (s *store) pruneUpTo(boundary uint16) {
	var victims []uint16
	s.tree.Ascend(func(it btree.Item) bool {
		p := it.(*storedPacket)
		if p.index > boundary {
			return false
		}
		victims = append(victims, p.index)
		return true
	})
	for _, idx := range victims {
		s.remove(idx)
	}
}
