// Package gensrc renders binary data as Go source.
//
// Bytes emits a []byte variable, optionally reordering each 32-bit
// little-endian word most significant byte first. Table emits a
// firmware.Table literal. Output is gofmt-ed through
// golang.org/x/tools/imports.
package gensrc

import (
	"bytes"
	"fmt"
	"go/token"
	"strings"
	"text/template"

	"golang.org/x/tools/imports"

	"github.com/moffa90/go-rkflash/firmware"
)

// BytesPerRow is the number of byte literals per line.
const BytesPerRow = 16

// WordSize is the word size used by word mode.
const WordSize = 4

// Config describes the generated file.
type Config struct {
	// Package is the package clause of the generated file
	Package string

	// Name is the variable name
	Name string

	// Source describes the input in the file header (optional)
	Source string

	// Words treats the input as little-endian 32-bit words and emits each
	// word most significant byte first
	Words bool
}

func (c Config) validate() error {
	if !token.IsIdentifier(c.Package) {
		return fmt.Errorf("invalid package name %q", c.Package)
	}
	if !token.IsIdentifier(c.Name) {
		return fmt.Errorf("invalid variable name %q", c.Name)
	}
	return nil
}

const header = `// Code generated by rkflash; DO NOT EDIT.
{{- if .Source}}
// Source: {{.Source}}
{{- end}}

package {{.Package}}
`

var bytesTemplate = template.Must(template.New("bytes").Parse(header + `
var {{.Name}} = []byte{
{{- range .Rows}}
	{{.}}
{{- end}}
}
`))

var tableTemplate = template.Must(template.New("table").Parse(header + `
import "github.com/moffa90/go-rkflash/firmware"

var {{.Name}} = firmware.Table{
{{- range .Chunks}}
	// sector payload {{.Index}}
	{Length: {{.Length}}, Data: []byte{
	{{- range .Rows}}
		{{.}}
	{{- end}}
	}},
{{- end}}
	firmware.Sentinel(),
}
`))

type chunk struct {
	Index  int
	Length int32
	Rows   []string
}

// Bytes renders data as a []byte variable.
func Bytes(data []byte, cfg Config) ([]byte, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Words {
		if len(data)%WordSize != 0 {
			return nil, fmt.Errorf("word mode needs a multiple of %d bytes, got %d", WordSize, len(data))
		}
		data = swapWords(data)
	}

	return render(bytesTemplate, struct {
		Config
		Rows []string
	}{cfg, rows(data)})
}

// Table renders t as a firmware.Table variable.
func Table(t firmware.Table, cfg Config) ([]byte, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid firmware table: %w", err)
	}

	chunks := make([]chunk, 0, t.Len())
	for i, c := range t[:t.Len()] {
		chunks = append(chunks, chunk{Index: i, Length: c.Length, Rows: rows(c.Data)})
	}

	return render(tableTemplate, struct {
		Config
		Chunks []chunk
	}{cfg, chunks})
}

func render(tmpl *template.Template, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
	}

	opts := imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	}
	src, err := imports.Process("generated.go", buf.Bytes(), &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to format %s: %w", tmpl.Name(), err)
	}
	return src, nil
}

// swapWords reverses the byte order of every 4-byte word.
func swapWords(data []byte) []byte {
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += WordSize {
		for j := 0; j < WordSize; j++ {
			out[i+j] = data[i+WordSize-1-j]
		}
	}
	return out
}

func rows(data []byte) []string {
	var out []string
	var sb strings.Builder
	for i, b := range data {
		if i%BytesPerRow != 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "0x%02x,", b)
		if i%BytesPerRow == BytesPerRow-1 || i == len(data)-1 {
			out = append(out, sb.String())
			sb.Reset()
		}
	}
	return out
}
