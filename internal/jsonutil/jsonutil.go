// Package jsonutil formats structs for printing on the terminal.
package jsonutil

import (
	"bytes"
	"sort"

	"github.com/fatih/structs"
	"github.com/hokaccha/go-prettyjson"
)

var compact, indented *prettyjson.Formatter

func init() {
	compact = prettyjson.NewFormatter()
	compact.Indent = 0
	compact.Newline = ""

	indented = prettyjson.NewFormatter()
	indented.Indent = 2
}

// MarshalCompactPretty formats the fields of struct v one per line, sorted by field name,
// with values in a compact colored JSON form.
func MarshalCompactPretty(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	m := structs.Map(v)
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := compact.Marshal(m[name])
		if err != nil {
			return nil, err
		}
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.Write(b)
		buf.WriteRune('\n')
	}
	return buf.Bytes(), nil
}

// MarshalPretty formats v as indented colored JSON.
func MarshalPretty(v interface{}) ([]byte, error) {
	return indented.Marshal(v)
}

// DisableColor makes the output plain text.
func DisableColor() {
	compact.DisabledColor = true
	indented.DisabledColor = true
}
