package rtdispatch

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"mdisp/internal/types"
)

// FingerprintBits is the width of a runtime value's type fingerprint.
const FingerprintBits = 24

const fingerprintMask = 1<<FingerprintBits - 1

// Value is the runtime type descriptor of one argument: the fingerprint
// carried by the value itself plus the full identity the descriptor points to.
type Value struct {
	Fingerprint uint32
	Identity    uint64
	Type        types.TypeID
}

// Fingerprint truncates an identity hash to FingerprintBits.
func Fingerprint(identity uint64) uint32 {
	return uint32(identity & fingerprintMask)
}

// Describe builds the descriptor of a ground runtime type.
func Describe(in *types.Interner, t types.TypeID) Value {
	id := in.Identity(t)
	return Value{Fingerprint: Fingerprint(id), Identity: id, Type: t}
}

// DescribeAll describes every argument type.
func DescribeAll(in *types.Interner, ts []types.TypeID) []Value {
	out := make([]Value, len(ts))
	for i, t := range ts {
		out[i] = Describe(in, t)
	}
	return out
}

func fingerprints(args []Value) []uint32 {
	out := make([]uint32, len(args))
	for i, a := range args {
		out[i] = a.Fingerprint
	}
	return out
}

func identities(args []Value) []uint64 {
	out := make([]uint64, len(args))
	for i, a := range args {
		out[i] = a.Identity
	}
	return out
}

// fastKey hashes (name, fingerprints) into the fast map key.
func fastKey(name string, fps []uint32) uint64 {
	var d xxhash.Digest
	d.Reset()
	_, _ = d.WriteString(name)
	_, _ = d.Write([]byte{0})
	var buf [3]byte
	for _, fp := range fps {
		buf[0], buf[1], buf[2] = byte(fp), byte(fp>>8), byte(fp>>16)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// identityKey hashes (name, identities) for the overflow cache.
func identityKey(name string, ids []uint64) uint64 {
	var d xxhash.Digest
	d.Reset()
	_, _ = d.WriteString(name)
	_, _ = d.Write([]byte{0})
	var buf [8]byte
	for _, id := range ids {
		binary.LittleEndian.PutUint64(buf[:], id)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
