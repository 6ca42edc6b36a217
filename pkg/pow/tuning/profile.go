package tuning

import (
	"context"
	"fmt"
	"time"

	"powengine/pkg/pow/core"
)

// validationDifficulty is the threshold used by ProfileValidation
const validationDifficulty = 0xffffffc000000000

// SolveSample is one timed solve of a profile run
type SolveSample struct {
	Seed     core.Nonce
	Solution core.Nonce
	Result   uint64
	Duration time.Duration
}

// ProfileResult summarises a profile run
type ProfileResult struct {
	Driver    string
	Threads   uint32
	TableSize uint64
	Samples   []SolveSample
	Average   time.Duration
}

// Profile solves count works with seeds (i+1, 0) and reports the average solve time
func Profile(ctx context.Context, d core.Driver, difficulty, tableSize uint64, count uint) (*ProfileResult, error) {
	if count == 0 {
		return nil, fmt.Errorf("profile count must be positive")
	}
	if err := core.CheckTableSize(tableSize); err != nil {
		return nil, err
	}
	d.SetDifficulty(difficulty)

	result := &ProfileResult{
		Driver:    d.Name(),
		Threads:   d.Threads(),
		TableSize: tableSize,
		Samples:   make([]SolveSample, 0, count),
	}

	var total time.Duration
	for i := uint64(0); i < uint64(count); i++ {
		w := core.NewWork()
		w.SetNonce(i+1, 0)
		w.SetDifficulty(difficulty)
		w.SetTableSize(tableSize)

		start := time.Now()
		if err := d.Solve(ctx, w); err != nil {
			return result, err
		}
		elapsed := time.Since(start)
		total += elapsed

		solution := w.SolutionNonce()
		result.Samples = append(result.Samples, SolveSample{
			Seed:     w.Seed(),
			Solution: solution,
			Result:   core.NewCanonical(w.Seed()).Difficulty(solution),
			Duration: elapsed,
		})
	}

	result.Average = total / time.Duration(count)
	return result, nil
}

// ValidationProfile summarises a ProfileValidation run
type ValidationProfile struct {
	Count     uint64
	Average   time.Duration
	PerSecond float64
	// Passed counts the solutions that met the threshold
	Passed uint64
}

// ProfileValidation measures the cost of the hash-only acceptance check
func ProfileValidation(count uint64) ValidationProfile {
	if count == 0 {
		return ValidationProfile{}
	}
	c := core.NewCanonical(core.Nonce{})

	var passed uint64
	start := time.Now()
	for i := uint64(0); i < count; i++ {
		if core.Passes(c.Sum(i, i), validationDifficulty) {
			passed++
		}
	}
	total := time.Since(start)

	profile := ValidationProfile{
		Count:   count,
		Average: total / time.Duration(count),
		Passed:  passed,
	}
	if total > 0 {
		profile.PerSecond = float64(count) / total.Seconds()
	}
	return profile
}
