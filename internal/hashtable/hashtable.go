// Package hashtable builds open-addressing u32 hash tables that are
// uploaded to storage buffers and probed by generated WGSL.
//
// A table is a flat []uint32 of [key, value] pairs. Capacity is always a
// power of two and empty slots hold EmptyKey. The host-side hash and probe
// sequence are bit-for-bit identical to the WGSL in [WGSL], so tables built
// here can be queried on the GPU.
package hashtable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
)

const (
	// EmptyKey marks an empty slot. It can never be stored as a key.
	EmptyKey uint32 = 0xFFFFFFFF

	// NotFound is returned by lookups that miss.
	NotFound = EmptyKey

	// DefaultMaxLoadFactor bounds size/capacity when no capacity is given.
	DefaultMaxLoadFactor = 0.6
)

// Errors returned by the builders.
var (
	ErrLoadFactor   = errors.New("hashtable: maxLoadFactor must be between 0 and 1")
	ErrCapacity     = errors.New("hashtable: capacity must be a positive power of two")
	ErrInsertFailed = errors.New("hashtable: insertion failed, increase capacity or lower load factor")
	ErrSentinelKey  = errors.New("hashtable: key 0xFFFFFFFF is reserved for empty slots")
	ErrKeyRange     = errors.New("hashtable: keys and values must be unsigned 32-bit integers")
)

// Options controls table sizing. The zero value uses the defaults.
type Options struct {
	// Capacity forces the slot count. Must be a power of two when set.
	Capacity int

	// MaxLoadFactor is used to derive the capacity when Capacity is zero.
	MaxLoadFactor float64
}

// Entry is a key/value pair for BuildMap.
type Entry struct {
	Key   uint32
	Value uint32
}

// Table is a built hash table.
type Table struct {
	// Data holds Capacity [key, value] pairs.
	Data []uint32

	// Capacity is the number of slots; always a power of two.
	Capacity int

	// Size is the number of distinct keys stored.
	Size int
}

// Hash32 is a 32-bit avalanche mix (xor-shift plus two multiplications).
func Hash32(v uint32) uint32 {
	v ^= v >> 16
	v *= 0x7feb352d
	v ^= v >> 15
	v *= 0x846ca68b
	v ^= v >> 16
	return v
}

// CapacityFor returns the slot count a table of size keys gets by default.
func CapacityFor(size int, maxLoadFactor float64) (int, error) {
	if maxLoadFactor == 0 {
		maxLoadFactor = DefaultMaxLoadFactor
	}
	if !(maxLoadFactor > 0 && maxLoadFactor < 1) {
		return 0, ErrLoadFactor
	}
	return nextPow2(int(math.Ceil(float64(size) / maxLoadFactor))), nil
}

func nextPow2(v int) int {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(v-1))
}

func isPow2(v int) bool {
	return v > 0 && v&(v-1) == 0
}

// BuildMap builds a table mapping each entry's key to its value. A repeated
// key overwrites the earlier value.
func BuildMap(entries []Entry, opts Options) (*Table, error) {
	capacity := opts.Capacity
	if capacity == 0 {
		c, err := CapacityFor(len(entries), opts.MaxLoadFactor)
		if err != nil {
			return nil, err
		}
		capacity = c
	} else if opts.MaxLoadFactor != 0 && !(opts.MaxLoadFactor > 0 && opts.MaxLoadFactor < 1) {
		return nil, ErrLoadFactor
	}
	if !isPow2(capacity) {
		return nil, fmt.Errorf("%w: got %d", ErrCapacity, capacity)
	}

	t := &Table{
		Data:     make([]uint32, capacity*2),
		Capacity: capacity,
	}
	for i := 0; i < capacity; i++ {
		t.Data[i*2] = EmptyKey
	}
	for _, e := range entries {
		if err := t.insert(e.Key, e.Value); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// BuildSet builds a membership table; every key maps to 1.
func BuildSet(keys []uint32, opts Options) (*Table, error) {
	entries := make([]Entry, len(keys))
	for i, k := range keys {
		entries[i] = Entry{Key: k, Value: 1}
	}
	return BuildMap(entries, opts)
}

// BuildMapInt validates host integers before building. Keys and values
// must be non-negative and fit in 32 bits.
func BuildMapInt(entries [][2]int64, opts Options) (*Table, error) {
	converted := make([]Entry, len(entries))
	for i, e := range entries {
		if e[0] < 0 || e[0] > math.MaxUint32 || e[1] < 0 || e[1] > math.MaxUint32 {
			return nil, fmt.Errorf("%w: [%d, %d]", ErrKeyRange, e[0], e[1])
		}
		converted[i] = Entry{Key: uint32(e[0]), Value: uint32(e[1])}
	}
	return BuildMap(converted, opts)
}

func (t *Table) insert(key, value uint32) error {
	if key == EmptyKey {
		return ErrSentinelKey
	}
	mask := uint32(t.Capacity - 1)
	slot := Hash32(key) & mask
	for probe := 0; probe < t.Capacity; probe++ {
		idx := slot * 2
		existing := t.Data[idx]
		if existing == EmptyKey || existing == key {
			if existing == EmptyKey {
				t.Size++
			}
			t.Data[idx] = key
			t.Data[idx+1] = value
			return nil
		}
		slot = (slot + 1) & mask
	}
	return ErrInsertFailed
}

// Lookup returns the value stored for key, or NotFound. The probe sequence
// stops at an empty slot or after Capacity probes.
func (t *Table) Lookup(key uint32) uint32 {
	if t == nil || t.Capacity == 0 || key == EmptyKey {
		return NotFound
	}
	mask := uint32(t.Capacity - 1)
	slot := Hash32(key) & mask
	for probe := 0; probe < t.Capacity; probe++ {
		idx := slot * 2
		k := t.Data[idx]
		if k == key {
			return t.Data[idx+1]
		}
		if k == EmptyKey {
			return NotFound
		}
		slot = (slot + 1) & mask
	}
	return NotFound
}

// Contains reports whether key is present.
func (t *Table) Contains(key uint32) bool {
	return t.Lookup(key) != NotFound
}

// ByteLength is the size of the table's GPU representation.
func (t *Table) ByteLength() int {
	return len(t.Data) * 4
}

// Bytes encodes the table as little-endian u32 words.
func (t *Table) Bytes() []byte {
	out := make([]byte, len(t.Data)*4)
	for i, v := range t.Data {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

// Empty returns the one-slot table used for a buffer with no entries.
// It satisfies the power-of-two invariant and misses every lookup.
func Empty() *Table {
	return &Table{Data: []uint32{EmptyKey, 0}, Capacity: 1}
}
