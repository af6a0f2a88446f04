package main

import (
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-rkflash/internal/gensrc"
)

func newConvertCmd() *cobra.Command {
	var (
		output  string
		pkg     string
		varName string
		words   bool
	)

	cmd := &cobra.Command{
		Use:   "convert INPUT",
		Short: "Render a binary blob as a Go byte slice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return badInput(fmt.Errorf("failed to read input: %w", err))
			}

			name := varName
			if name == "" {
				name = identifier(args[0])
			}

			src, err := gensrc.Bytes(data, gensrc.Config{
				Package: pkg,
				Name:    name,
				Source:  filepath.Base(args[0]),
				Words:   words,
			})
			if err != nil {
				return badInput(err)
			}
			return writeOutput(output, src)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	f.StringVar(&pkg, "package", "main", "package name")
	f.StringVar(&varName, "name", "", "variable name (default: derived from INPUT)")
	f.BoolVar(&words, "words", false, "treat INPUT as 32-bit little-endian words, emit most significant byte first")
	return cmd
}

// identifier derives a Go identifier from a file name.
func identifier(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var sb strings.Builder
	for i, r := range base {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	name := sb.String()
	switch {
	case name == "":
		return "data"
	case token.IsKeyword(name):
		return "_" + name
	}
	return name
}
