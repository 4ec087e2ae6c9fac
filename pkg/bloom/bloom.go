// Package bloom implements the O(1) probabilistic vocabulary pre-check:
// no false negatives, a configurable target false-positive rate, and
// constant-time, allocation-free membership tests.
package bloom

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// Filter is a Bloom filter sized for a target capacity and error rate.
type Filter struct {
	bits      []uint64
	bitCount  uint64
	hashCount int
	capacity  int
	errorRate float64
	itemCount int
}

// DefaultErrorRate is the target false-positive rate at capacity.
const DefaultErrorRate = 0.01

// New builds a Filter sized via m = ceil(-n*ln(p)/(ln2)^2), k = ceil(m/n*ln2),
// capped at k >= 1.
func New(capacity int, errorRate float64) *Filter {
	if capacity < 1 {
		capacity = 1
	}
	if errorRate <= 0 || errorRate >= 1 {
		errorRate = DefaultErrorRate
	}
	n := float64(capacity)
	bitCount := uint64(math.Ceil(-n * math.Log(errorRate) / (math.Ln2 * math.Ln2)))
	if bitCount < 64 {
		bitCount = 64
	}
	hashCount := int(math.Ceil(float64(bitCount) / n * math.Ln2))
	if hashCount < 1 {
		hashCount = 1
	}
	words := (bitCount + 63) / 64
	return &Filter{
		bits:      make([]uint64, words),
		bitCount:  bitCount,
		hashCount: hashCount,
		capacity:  capacity,
		errorRate: errorRate,
	}
}

// bitPosition returns the bit position for word under one seeded xxHash64
// hash function (seed = hash-function index). WriteString keeps
// the membership path free of per-call allocations.
func (f *Filter) bitPosition(word string, seed uint64) uint64 {
	h := xxhash.NewWithSeed(seed)
	_, _ = h.WriteString(word)
	return h.Sum64() % f.bitCount
}

func (f *Filter) setBit(pos uint64) {
	f.bits[pos/64] |= 1 << (pos % 64)
}

func (f *Filter) getBit(pos uint64) bool {
	return f.bits[pos/64]&(1<<(pos%64)) != 0
}

// Add inserts a word into the filter.
func (f *Filter) Add(word string) {
	for seed := 0; seed < f.hashCount; seed++ {
		f.setBit(f.bitPosition(word, uint64(seed)))
	}
	f.itemCount++
}

// AddMany inserts every word in words.
func (f *Filter) AddMany(words []string) {
	for _, w := range words {
		f.Add(w)
	}
}

// Contains reports whether word might be in the set. No false negatives:
// if Contains returns false, the word is definitely absent.
func (f *Filter) Contains(word string) bool {
	for seed := 0; seed < f.hashCount; seed++ {
		if !f.getBit(f.bitPosition(word, uint64(seed))) {
			return false
		}
	}
	return true
}

// Len returns the number of Add calls made on the filter; a word added
// more than once is counted each time.
func (f *Filter) Len() int {
	return f.itemCount
}

// Stats reports Bloom filter sizing and fill statistics.
type Stats struct {
	Capacity           int
	ItemCount          int
	BitCount           uint64
	HashCount          int
	FillRate           float64
	TargetErrorRate    float64
	EstimatedErrorRate float64
	MemoryBytes        int
	MemoryPerItem      float64
}

// Stats computes the current fill rate and an estimate of the actual
// false-positive rate given that fill.
func (f *Filter) Stats() Stats {
	setBits := 0
	for _, word := range f.bits {
		setBits += popcount(word)
	}
	fillRate := float64(setBits) / float64(f.bitCount)

	var estimated float64
	if f.itemCount > 0 {
		estimated = math.Pow(1-math.Exp(-float64(f.hashCount)*float64(f.itemCount)/float64(f.bitCount)), float64(f.hashCount))
	}

	memBytes := len(f.bits) * 8
	memPerItem := float64(memBytes)
	if f.itemCount > 0 {
		memPerItem /= float64(f.itemCount)
	}

	return Stats{
		Capacity:           f.capacity,
		ItemCount:          f.itemCount,
		BitCount:           f.bitCount,
		HashCount:          f.hashCount,
		FillRate:           fillRate,
		TargetErrorRate:    f.errorRate,
		EstimatedErrorRate: estimated,
		MemoryBytes:        memBytes,
		MemoryPerItem:      memPerItem,
	}
}

func popcount(x uint64) int {
	count := 0
	for x != 0 {
		x &= x - 1
		count++
	}
	return count
}
