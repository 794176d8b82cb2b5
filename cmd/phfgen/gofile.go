package main

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"
)

var goFileTemplate = template.Must(template.New("gofile").Parse(`// Code generated by phfgen. DO NOT EDIT.

package {{.Package}}

import (
	_ "embed"

	"github.com/tamirms/phtable"
)

//go:embed {{.File}}
var {{.DataVar}} []byte

// {{.Var}} is the perfect-hash table generated from {{.Source}}.
var {{.Var}} = phtable.MustOpenBytes({{.DataVar}})
`))

type goFileData struct {
	Package string
	File    string
	Var     string
	DataVar string
	Source  string
}

// goFilePath returns the path of the Go wrapper: the table path with its
// extension replaced by .go.
func goFilePath(out string) string {
	return strings.TrimSuffix(out, filepath.Ext(out)) + ".go"
}

// writeGoFile writes a Go source file next to cfg.out that embeds the
// table with //go:embed and opens it at package initialization.
func writeGoFile(cfg *config, source string) error {
	if !token.IsIdentifier(cfg.goPackage) {
		return fmt.Errorf("invalid Go package name %q", cfg.goPackage)
	}
	if !token.IsIdentifier(cfg.goVar) {
		return fmt.Errorf("invalid Go variable name %q", cfg.goVar)
	}
	if filepath.Ext(cfg.out) == ".go" {
		return errors.New("-out must not have a .go extension with -go-package")
	}

	first, size := utf8.DecodeRuneInString(cfg.goVar)
	data := goFileData{
		Package: cfg.goPackage,
		File:    filepath.Base(cfg.out),
		Var:     cfg.goVar,
		DataVar: string(unicode.ToLower(first)) + cfg.goVar[size:] + "Data",
		Source:  filepath.Base(source),
	}

	var buf bytes.Buffer
	if err := goFileTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("render Go file: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("format Go file: %w", err)
	}

	path := goFilePath(cfg.out)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, src, 0o644); err != nil {
		return fmt.Errorf("write Go file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(fmt.Errorf("rename Go file: %w", err), removeIfExists(tmp))
	}
	return nil
}
