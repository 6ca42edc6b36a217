package core

import "fmt"

// Nonce is a 128-bit value split in two 64-bit words
type Nonce struct {
	Hi uint64 `json:"hi" yaml:"hi"`
	Lo uint64 `json:"lo" yaml:"lo"`
}

func (n Nonce) String() string {
	return fmt.Sprintf("%016x%016x", n.Hi, n.Lo)
}

// Work is a single unit of proof-of-work. It is not tied to any driver.
type Work struct {
	seed       Nonce
	difficulty uint64
	tableSize  uint64
	solution   Nonce
}

// NewWork creates an empty work item
func NewWork() *Work {
	return &Work{}
}

// SetNonce sets the seed
func (w *Work) SetNonce(hi, lo uint64) {
	w.seed = Nonce{Hi: hi, Lo: lo}
}

// Seed returns the seed
func (w *Work) Seed() Nonce {
	return w.seed
}

// SetSolution overwrites the solution
func (w *Work) SetSolution(hi, lo uint64) {
	w.solution = Nonce{Hi: hi, Lo: lo}
}

// Solution returns the solution last set by the caller or by a solve.
// There is no validity flag, use Validate to check it.
func (w *Work) Solution() (hi, lo uint64) {
	return w.solution.Hi, w.solution.Lo
}

// SolutionNonce returns the solution as a Nonce
func (w *Work) SolutionNonce() Nonce {
	return w.solution
}

// SetDifficulty sets the acceptance threshold
func (w *Work) SetDifficulty(difficulty uint64) {
	w.difficulty = difficulty
}

// Difficulty returns the acceptance threshold
func (w *Work) Difficulty() uint64 {
	return w.difficulty
}

// SetTableSize sets the lookup table size in bytes
func (w *Work) SetTableSize(bytes uint64) {
	w.tableSize = bytes
}

// TableSize returns the lookup table size in bytes
func (w *Work) TableSize() uint64 {
	return w.tableSize
}

func (w *Work) String() string {
	return fmt.Sprintf("seed=%s difficulty=%016x table=%d solution=%s",
		w.seed, w.difficulty, w.tableSize, w.solution)
}
