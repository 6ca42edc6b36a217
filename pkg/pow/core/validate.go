package core

// Validate checks the solution of w without building its table.
// It confirms both halves are in range and that the preimage hashes to the
// slot the candidate probes, then applies the threshold. A work whose table
// size is invalid is an error.
func Validate(w *Work) (bool, error) {
	if w == nil {
		return false, ErrWorkInvalid
	}
	if err := CheckTableSize(w.TableSize()); err != nil {
		return false, err
	}

	entries := TableSizeToEntries(w.TableSize())
	solution := w.SolutionNonce()
	if solution.Hi >= entries || solution.Lo > CandidateMask {
		return false, nil
	}

	c := NewCanonical(w.Seed())
	sum := c.Sum(solution.Hi, solution.Lo)
	if sum&(entries-1) != 0 {
		return false, nil
	}
	return Passes(sum, w.Difficulty()), nil
}
