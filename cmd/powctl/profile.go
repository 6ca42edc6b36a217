package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"powengine/pkg/pow"
	"powengine/pkg/pow/core"
	"powengine/pkg/pow/tuning"
)

var (
	profileCount      uint
	profileBits       uint8
	profileLookup     uint8
	profileValidation bool
	tuneCount         uint
	tuneBits          uint8
	tuneLookup        uint8
	tuneMaxThreads    uint32
)

// lookupFor returns lookup, or the driver recommendation for class when lookup is 0
func lookupFor(ec *pow.ErrorContext, d pow.Driver, lookup, class uint8) (uint8, error) {
	if lookup != 0 {
		return lookup, nil
	}
	lookup = pow.RecommendedLookup(ec, d, class)
	return lookup, contextError(ec)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Measure the average solve time of the selected driver",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if profileValidation {
			count := max(uint64(profileCount), 10_000_000)
			header(out, "Validation profile")
			result := tuning.ProfileValidation(count)
			fmt.Fprintln(out, field("Validations", result.Count))
			fmt.Fprintln(out, field("Average", result.Average))
			fmt.Fprintln(out, field("Per second", fmt.Sprintf("%.0f", result.PerSecond)))
			return nil
		}

		d, err := state.driver()
		if err != nil {
			return err
		}
		ec := pow.NewContext()
		defer pow.DestroyContext(ec)
		defer pow.DestroyDriver(ec, d)

		lookup, err := lookupFor(ec, d, profileLookup, profileBits)
		if err != nil {
			return err
		}
		difficulty := core.BitDifficulty(profileBits)
		size := core.LookupToTableSize(lookup)

		header(out, fmt.Sprintf("Profiling %s: %d threads, %s table, %d bits",
			d.Name(), d.Threads(), megabytes(size), profileBits))
		result, err := tuning.Profile(cmd.Context(), d, difficulty, size, profileCount)
		if result != nil {
			for _, sample := range result.Samples {
				fmt.Fprintf(out, "%s %s %016x  %s\n",
					labelStyle.Render(sample.Seed.String()),
					valueStyle.Render(sample.Solution.String()),
					sample.Result,
					sample.Duration.Round(time.Microsecond))
			}
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, field("Average solve time", result.Average.Round(time.Microsecond)))
		return nil
	},
}

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search the table size and thread count giving the fastest solves",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := state.driver()
		if err != nil {
			return err
		}
		ec := pow.NewContext()
		defer pow.DestroyContext(ec)
		defer pow.DestroyDriver(ec, d)

		lookup, err := lookupFor(ec, d, tuneLookup, tuneBits)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		header(out, fmt.Sprintf("Tuning %s for %d bits", d.Name(), tuneBits))
		result, err := tuning.Tune(cmd.Context(), d, tuning.Options{
			Count:      tuneCount,
			Difficulty: core.BitDifficulty(tuneBits),
			TableSize:  core.LookupToTableSize(lookup),
			MaxThreads: tuneMaxThreads,
			Logger:     state.logger,
		})
		if result != nil {
			for _, trial := range result.Trials {
				line := fmt.Sprintf("%6d threads %10s", trial.Threads, megabytes(trial.TableSize))
				if trial.Err != nil {
					fmt.Fprintln(out, line+"  "+failStyle.Render(trial.Err.Error()))
					continue
				}
				fmt.Fprintln(out, line+"  average "+valueStyle.Render(trial.Average.Round(time.Microsecond).String()))
			}
		}
		if err != nil {
			return err
		}

		header(out, "Tuning results")
		if result.MaxTableSize != 0 {
			fmt.Fprintln(out, field("Maximum memory", megabytes(result.MaxTableSize)))
		}
		fmt.Fprintln(out, field("Recommended memory", megabytes(result.BestTableSize)))
		fmt.Fprintln(out, field("Recommended threads", result.BestThreads))
		return nil
	},
}

func init() {
	profileCmd.Flags().UintVarP(&profileCount, "count", "n", 16, "number of solves")
	profileCmd.Flags().Uint8Var(&profileBits, "bits", 24, "difficulty as a number of leading one bits")
	profileCmd.Flags().Uint8Var(&profileLookup, "lookup", 0, "table class (0: driver recommendation)")
	profileCmd.Flags().BoolVar(&profileValidation, "validation", false, "profile the hash-only validation instead")

	tuneCmd.Flags().UintVarP(&tuneCount, "count", "n", 8, "solves per configuration")
	tuneCmd.Flags().Uint8Var(&tuneBits, "bits", 24, "difficulty as a number of leading one bits")
	tuneCmd.Flags().Uint8Var(&tuneLookup, "lookup", 0, "initial table class (0: driver recommendation)")
	tuneCmd.Flags().Uint32Var(&tuneMaxThreads, "max-threads", 0, "thread search ceiling for OpenCL (0: four times the recommendation)")
}
