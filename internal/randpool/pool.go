// Package randpool implements the narrow random-source interface called for
// by design note §9 ("Unstructured random source"): a small façade over a
// fixed byte pool that isolates reproducibility semantics from the rest of
// the generator, rather than threading raw bytes everywhere.
//
// A Pool is read-only once seeded. Every consuming call advances a cursor;
// two Pools constructed with the same seed and sliced identically yield
// identical sequences of ChooseOneOf/TakeInt/TakeBytes results, which is
// what gives the generator its replay-determinism property (spec §5, §8).
package randpool

import (
	"encoding/binary"
	"math/rand"
)

// Pool is the generator's sole source of entropy.
type Pool struct {
	data   []byte
	cursor int
}

// New constructs a Pool of size bytes deterministically derived from seed.
func New(seed int64, size int) *Pool {
	data := make([]byte, size)
	rand.New(rand.NewSource(seed)).Read(data) //nolint:gosec // reproducibility, not cryptographic
	return &Pool{data: data}
}

// FromBytes wraps an existing byte slice (e.g. loaded from a trace's data/
// directory for replay) as a Pool.
func FromBytes(data []byte) *Pool {
	return &Pool{data: data}
}

// Bytes returns the pool's full underlying byte slice, for persistence
// (spec §6: "The run also persists the raw random-byte pool under data/").
func (p *Pool) Bytes() []byte { return p.data }

// Cursor returns the number of bytes consumed so far, used by the resume
// path (SPEC_FULL §4.6) to continue a run from where it left off.
func (p *Pool) Cursor() int { return p.cursor }

// Seek resets the cursor to a previously observed position.
func (p *Pool) Seek(pos int) { p.cursor = pos }

// Exhausted reports whether the pool has no bytes left to consume.
func (p *Pool) Exhausted() bool { return p.cursor >= len(p.data) }

// next returns up to n bytes from the cursor, zero-padding if the pool runs
// out; this matches the source behavior of treating exhaustion as an
// implicit zero-fill rather than panicking, so a run terminates via the
// Exhausted check rather than a crash mid-call.
func (p *Pool) next(n int) []byte {
	out := make([]byte, n)
	avail := len(p.data) - p.cursor
	if avail < 0 {
		avail = 0
	}
	if avail > n {
		avail = n
	}
	copy(out, p.data[p.cursor:p.cursor+avail])
	p.cursor += n
	return out
}

// ChooseOneOf picks an index in [0, n) from the pool, uniformly over a
// single consumed byte when n <= 256, else over consumed uint32s.
func (p *Pool) ChooseOneOf(n int) int {
	if n <= 0 {
		return 0
	}
	if n <= 256 {
		b := p.next(1)
		return int(b[0]) % n
	}
	b := p.next(4)
	return int(binary.LittleEndian.Uint32(b)) % n
}

// TakeInt returns an integer in [lo, hi), consuming 8 bytes.
func (p *Pool) TakeInt(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	b := p.next(8)
	v := int64(binary.LittleEndian.Uint64(b))
	if v < 0 {
		v = -v
		if v < 0 { // math.MinInt64 has no positive counterpart
			v = 0
		}
	}
	return lo + v%(hi-lo)
}

// TakeBytes consumes and returns exactly n bytes.
func (p *Pool) TakeBytes(n int) []byte {
	return p.next(n)
}

// TakeBool consumes one byte and interprets its low bit as a boolean.
func (p *Pool) TakeBool() bool {
	return p.next(1)[0]&1 == 1
}

// TakeString consumes a printable, '/'-free string of the given length,
// suitable for a path Segment component (spec §3's path invariants: "no
// component contains a slash").
func (p *Pool) TakeString(length int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_."
	out := make([]byte, length)
	for i := range out {
		out[i] = alphabet[p.ChooseOneOf(len(alphabet))]
	}
	return string(out)
}

// Clone returns a Pool sharing the same underlying bytes but with an
// independent cursor, used to hand each runtime thread its own view of a
// shared seed (spec §5: "The random pool is read-only once seeded (it is
// cloned or sliced per thread)").
func (p *Pool) Clone() *Pool {
	return &Pool{data: p.data, cursor: p.cursor}
}
