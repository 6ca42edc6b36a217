package core

import (
	"encoding/binary"
	"math/bits"

	"github.com/dchest/siphash"
	"golang.org/x/crypto/blake2b"
)

const (
	// lhsTag separates the table domain from the candidate domain
	lhsTag = uint64(1) << 63

	// CandidateBits is the width of the candidate (rhs) half of a solution
	CandidateBits = 48
	// CandidateMask selects the candidate bits
	CandidateMask = uint64(1)<<CandidateBits - 1
)

// Canonical is the reference mixing function keyed by a work seed.
// Every driver must produce results identical to it.
type Canonical struct {
	k0, k1 uint64
}

// NewCanonical creates the mixing function for seed
func NewCanonical(seed Nonce) Canonical {
	return Canonical{k0: seed.Hi, k1: seed.Lo}
}

func (c Canonical) hash(item uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], item)
	return siphash.Hash(c.k0, c.k1, buf[:])
}

// H0 hashes a table preimage
func (c Canonical) H0(lhs uint64) uint64 {
	return c.hash(lhs | lhsTag)
}

// H1 hashes a search candidate
func (c Canonical) H1(rhs uint64) uint64 {
	return c.hash(rhs & CandidateMask)
}

// Sum combines both halves of a solution
func (c Canonical) Sum(lhs, rhs uint64) uint64 {
	return c.H0(lhs) + c.H1(rhs)
}

// Difficulty returns the 64-bit result for a solution. Larger is harder.
func (c Canonical) Difficulty(solution Nonce) uint64 {
	return Result(c.Sum(solution.Hi, solution.Lo))
}

// Result maps a sum to the value compared against the threshold.
// Every trailing zero bit of sum becomes a leading one bit of the result.
func Result(sum uint64) uint64 {
	return bits.Reverse64(^sum)
}

// Passes applies the acceptance rule result >= difficulty
func Passes(sum, difficulty uint64) bool {
	return Result(sum) >= difficulty
}

// QuickMask returns the bits of a sum that must be zero for any result to
// reach difficulty. A sum with one of them set can be rejected without
// computing the result.
func QuickMask(difficulty uint64) uint64 {
	k := bits.LeadingZeros64(^difficulty)
	if k == 64 {
		return ^uint64(0)
	}
	return uint64(1)<<k - 1
}

// BitDifficulty returns the threshold requiring the given number of leading one bits
func BitDifficulty(leadingOnes uint8) uint64 {
	if leadingOnes == 0 {
		return 0
	}
	if leadingOnes >= 64 {
		return ^uint64(0)
	}
	return ^uint64(0) << (64 - leadingOnes)
}

// SearchOrigin derives the first candidate probed for seed, so that
// independent searches for different seeds start in unrelated places.
func SearchOrigin(seed Nonce) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], seed.Hi)
	binary.LittleEndian.PutUint64(buf[8:], seed.Lo)
	sum := blake2b.Sum256(buf[:])
	return binary.LittleEndian.Uint64(sum[:8]) & CandidateMask
}
