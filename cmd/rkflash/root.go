package main

import (
	"flag"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rkflash",
		Short: "Flash Rockchip devices over USB",
		Long: `rkflash uploads the DDR-init and USB-plug loaders to a Rockchip device in
BootROM mode, waits for it to re-enumerate, then erases the boot sectors,
writes a firmware table and resets the device.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// glog reads its flags from the standard flag set
			return flag.CommandLine.Parse(nil)
		},
	}

	// glog logs to files by default
	_ = flag.Set("logtostderr", "true")
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	root.AddCommand(
		newFlashCmd(),
		newExtractCmd(),
		newConvertCmd(),
		newVersionCmd(),
	)
	return root
}
