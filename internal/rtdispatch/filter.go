package rtdispatch

import (
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"
)

// filter marks the fingerprint tuples of a family that more than one method
// claims. A negative answer is exact; a positive one asks for the full
// identity comparison.
type filter struct {
	b *bloom.BloomFilter
}

func newFilter(bits, k int) *filter {
	return &filter{b: bloom.New(uint(bits), uint(k))}
}

func (f *filter) add(fps []uint32) { f.b.Add(tupleKey(fps)) }

func (f *filter) has(fps []uint32) bool { return f.b.Test(tupleKey(fps)) }

func (f *filter) empty() bool { return f.b.BitSet().None() }

func (f *filter) marshal() ([]byte, error) { return f.b.MarshalBinary() }

// unmarshalFilter restores a filter written by marshal and checks that it
// was sized with opts.
func unmarshalFilter(data []byte, opts Options) (*filter, error) {
	b := &bloom.BloomFilter{}
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if b.Cap() != uint(opts.FilterBits) || b.K() != uint(opts.FilterHashes) {
		return nil, fmt.Errorf("filter sized %d bits, %d hashes; options say %d, %d",
			b.Cap(), b.K(), opts.FilterBits, opts.FilterHashes)
	}
	return &filter{b: b}, nil
}

// tupleKey packs a fingerprint tuple into 3 bytes per fingerprint.
func tupleKey(fps []uint32) []byte {
	out := make([]byte, 0, 3*len(fps))
	for _, fp := range fps {
		out = append(out, byte(fp), byte(fp>>8), byte(fp>>16))
	}
	return out
}
