package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"powengine/pkg/pow"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List OpenCL devices and the drivers available on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		ec := pow.NewContext()
		defer pow.DestroyContext(ec)

		list := state.engine.DeviceListGet(ec)
		if err := contextError(ec); err != nil {
			return err
		}
		defer pow.DeviceListDestroy(ec, list)

		count := pow.DeviceCount(ec, list)
		if err := contextError(ec); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		header(out, fmt.Sprintf("OpenCL devices (%d)", count))
		for i := uint16(0); i < count; i++ {
			dev := pow.DeviceGetByIndex(ec, list, i)
			if err := contextError(ec); err != nil {
				return err
			}
			lines := []string{
				field("Name", pow.DeviceName(ec, dev)),
				field("Vendor", pow.DeviceVendor(ec, dev)),
				field("Platform / device", fmt.Sprintf("%d / %d", pow.DevicePlatformID(ec, dev), pow.DeviceID(ec, dev))),
				field("Compiler", pow.DeviceCompilerAvailable(ec, dev)),
				field("Global memory", megabytes(pow.DeviceMemoryAvailable(ec, dev))),
				field("Max allocation", megabytes(pow.DeviceMaximumAllocSize(ec, dev))),
			}
			fmt.Fprintln(out, boxStyle.Render(strings.Join(lines, "\n")))
		}

		report := state.factory.GetDetectionReport()
		header(out, "Drivers")
		for _, status := range report.Drivers {
			mark := failStyle.Render("unavailable")
			if status.Available {
				mark = okStyle.Render("available")
			}
			fmt.Fprintf(out, "%s %s  %s\n", labelStyle.Render(status.Name), mark, status.Description)
		}
		fmt.Fprintln(out, field("Best driver", report.BestDriver))
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Describe the hardware seen by the selected driver",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := state.driver()
		if err != nil {
			return err
		}
		ec := pow.NewContext()
		defer pow.DestroyContext(ec)
		defer pow.DestroyDriver(ec, d)

		header(cmd.OutOrStdout(), d.Name()+" driver")
		pow.DumpDriver(ec, d, cmd.OutOrStdout())
		return contextError(ec)
	},
}
