package main

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/spf13/cobra"

	"powengine/pkg/pow"
	"powengine/pkg/pow/core"
)

// WorkFlags describe the work item shared by solve and validate
type WorkFlags struct {
	SeedHi     string
	SeedLo     string
	Difficulty string
	Bits       uint8
	Lookup     uint8
	TableSize  string
}

var (
	solveFlags    WorkFlags
	validateFlags WorkFlags
	solutionHi    string
	solutionLo    string
	quickValidate bool
	solveVerify   bool
)

func addWorkFlags(cmd *cobra.Command, f *WorkFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.SeedHi, "seed-hi", "0", "high 64 bits of the seed")
	flags.StringVar(&f.SeedLo, "seed-lo", "0", "low 64 bits of the seed")
	flags.StringVar(&f.Difficulty, "difficulty", "", "64-bit threshold, overrides --bits")
	flags.Uint8Var(&f.Bits, "bits", 24, "difficulty as a number of leading one bits")
	flags.Uint8Var(&f.Lookup, "lookup", 0, "table class, 2^lookup slots (0: driver recommendation)")
	flags.StringVar(&f.TableSize, "table-size", "", "table size in bytes, overrides --lookup")
}

// difficulty returns the threshold and its class
func (f *WorkFlags) difficulty() (uint64, uint8, error) {
	if f.Difficulty == "" {
		return core.BitDifficulty(f.Bits), f.Bits, nil
	}
	v, err := parseUint("difficulty", f.Difficulty)
	if err != nil {
		return 0, 0, err
	}
	return v, uint8(bits.LeadingZeros64(^v)), nil
}

// work builds the work item, asking d for the table size when none was given
func (f *WorkFlags) work(ec *pow.ErrorContext, d pow.Driver) (*pow.Work, error) {
	hi, err := parseUint("seed-hi", f.SeedHi)
	if err != nil {
		return nil, err
	}
	lo, err := parseUint("seed-lo", f.SeedLo)
	if err != nil {
		return nil, err
	}
	difficulty, class, err := f.difficulty()
	if err != nil {
		return nil, err
	}

	var size uint64
	switch {
	case f.TableSize != "":
		if size, err = parseUint("table-size", f.TableSize); err != nil {
			return nil, err
		}
	case f.Lookup != 0:
		size = core.LookupToTableSize(f.Lookup)
	default:
		lookup := pow.RecommendedLookup(ec, d, class)
		if err := contextError(ec); err != nil {
			return nil, err
		}
		size = core.LookupToTableSize(lookup)
	}

	w := pow.NewWork(ec)
	w.SetNonce(hi, lo)
	w.SetDifficulty(difficulty)
	w.SetTableSize(size)
	return w, nil
}

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Search a solution for a seed",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := state.driver()
		if err != nil {
			return err
		}
		ec := pow.NewContext()
		defer pow.DestroyContext(ec)
		defer pow.DestroyDriver(ec, d)

		w, err := solveFlags.work(ec, d)
		if err != nil {
			return err
		}
		defer pow.DestroyWork(ec, w)

		out := cmd.OutOrStdout()
		header(out, fmt.Sprintf("Solving with %s (%d threads)", d.Name(), pow.ThreadsGet(ec, d)))
		fmt.Fprintln(out, field("Seed", w.Seed()))
		fmt.Fprintln(out, field("Difficulty", fmt.Sprintf("%016x", w.Difficulty())))
		fmt.Fprintln(out, field("Table size", megabytes(w.TableSize())))

		start := time.Now()
		pow.SolveContext(cmd.Context(), ec, d, w)
		if err := contextError(ec); err != nil {
			return err
		}
		elapsed := time.Since(start)

		solution := w.SolutionNonce()
		fmt.Fprintln(out, field("Solution", solution))
		fmt.Fprintln(out, field("Result", fmt.Sprintf("%016x", core.NewCanonical(w.Seed()).Difficulty(solution))))
		fmt.Fprintln(out, field("Time", elapsed.Round(time.Millisecond)))

		if solveVerify {
			valid := pow.DriverValidateContext(cmd.Context(), ec, d, w)
			if err := contextError(ec); err != nil {
				return err
			}
			fmt.Fprintln(out, field("Validation", verdict(valid)))
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a solution against a seed",
	RunE: func(cmd *cobra.Command, args []string) error {
		hi, err := parseUint("solution-hi", solutionHi)
		if err != nil {
			return err
		}
		lo, err := parseUint("solution-lo", solutionLo)
		if err != nil {
			return err
		}

		d, err := state.driver()
		if err != nil {
			return err
		}
		ec := pow.NewContext()
		defer pow.DestroyContext(ec)
		defer pow.DestroyDriver(ec, d)

		w, err := validateFlags.work(ec, d)
		if err != nil {
			return err
		}
		defer pow.DestroyWork(ec, w)
		w.SetSolution(hi, lo)

		var valid bool
		if quickValidate {
			valid = pow.Validate(ec, w)
		} else {
			valid = pow.DriverValidateContext(cmd.Context(), ec, d, w)
		}
		if err := contextError(ec); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), field("Solution", w.SolutionNonce())+"  "+verdict(valid))
		if !valid {
			return fmt.Errorf("solution %s does not solve seed %s", w.SolutionNonce(), w.Seed())
		}
		return nil
	},
}

func init() {
	addWorkFlags(solveCmd, &solveFlags)
	solveCmd.Flags().BoolVar(&solveVerify, "verify", false, "validate the solution with the same driver")

	addWorkFlags(validateCmd, &validateFlags)
	validateCmd.Flags().StringVar(&solutionHi, "solution-hi", "0", "high 64 bits of the solution (table preimage)")
	validateCmd.Flags().StringVar(&solutionLo, "solution-lo", "0", "low 64 bits of the solution (candidate)")
	validateCmd.Flags().BoolVar(&quickValidate, "quick", false, "hash-only check without rebuilding the table")
}
