package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-rkflash/internal/gensrc"
	"github.com/moffa90/go-rkflash/internal/usbpcap"
)

func newExtractCmd() *cobra.Command {
	var (
		output  string
		goSrc   bool
		pkg     string
		varName string
	)

	cmd := &cobra.Command{
		Use:   "extract CAPTURE",
		Short: "Recover a firmware table from a USBPcap capture of a vendor tool run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return badInput(fmt.Errorf("failed to open capture: %w", err))
			}
			defer f.Close()

			table, err := usbpcap.ExtractFirmware(f)
			if err != nil {
				return badInput(err)
			}
			glog.Infof("extracted %d sector payloads, %d bytes", table.Len(), table.Size())

			if goSrc {
				src, err := gensrc.Table(table, gensrc.Config{
					Package: pkg,
					Name:    varName,
					Source:  filepath.Base(args[0]),
				})
				if err != nil {
					return err
				}
				return writeOutput(output, src)
			}

			out, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			if _, err := table.WriteTo(out); err != nil {
				out.Close()
				return fmt.Errorf("failed to write table: %w", err)
			}
			return out.Close()
		},
	}

	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "firmware.rkt", "output file")
	f.BoolVar(&goSrc, "go", false, "emit Go source instead of a binary table")
	f.StringVar(&pkg, "package", "firmware", "package name for --go")
	f.StringVar(&varName, "name", "Table", "variable name for --go")
	return cmd
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	glog.V(1).Infof("wrote %s (%d bytes)", path, len(data))
	return nil
}
