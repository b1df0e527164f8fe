package sandbox

import (
	"fmt"
	"sort"
	"strings"
)

// The isolation runtime consumes a declarative text descriptor. This file
// is a small structured builder for that format: values are assembled as a
// document tree and serialized in one place, so arbitrary plugin source
// and parameters are escaped centrally instead of being spliced into
// template strings.

// Value is one serializable descriptor value
type Value interface {
	write(b *strings.Builder, indent string)
}

// Text is an escaped string literal
type Text string

func (t Text) write(b *strings.Builder, _ string) {
	b.WriteByte('"')
	b.WriteString(escapeText(string(t)))
	b.WriteByte('"')
}

// Bool is a boolean literal
type Bool bool

func (v Bool) write(b *strings.Builder, _ string) {
	if v {
		b.WriteString("true")
	} else {
		b.WriteString("false")
	}
}

// Ref references a named constant declared elsewhere in the document
type Ref string

func (r Ref) write(b *strings.Builder, _ string) {
	b.WriteString("." + string(r))
}

// List is an ordered value list
type List []Value

func (l List) write(b *strings.Builder, indent string) {
	if len(l) == 0 {
		b.WriteString("[]")
		return
	}

	inner := indent + "  "
	b.WriteString("[\n")
	for _, v := range l {
		b.WriteString(inner)
		v.write(b, inner)
		b.WriteString(",\n")
	}
	b.WriteString(indent + "]")
}

// Struct is an ordered field group
type Struct struct {
	fields []field
}

type field struct {
	name  string
	value Value
}

// NewStruct creates an empty struct value
func NewStruct() *Struct {
	return &Struct{}
}

// Set appends a field, preserving insertion order for deterministic output
func (s *Struct) Set(name string, value Value) *Struct {
	s.fields = append(s.fields, field{name: name, value: value})
	return s
}

func (s *Struct) write(b *strings.Builder, indent string) {
	if len(s.fields) == 0 {
		b.WriteString("()")
		return
	}

	inner := indent + "  "
	b.WriteString("(\n")
	for _, f := range s.fields {
		b.WriteString(inner)
		b.WriteString(f.name)
		b.WriteString(" = ")
		f.value.write(b, inner)
		b.WriteString(",\n")
	}
	b.WriteString(indent + ")")
}

// Document is one complete descriptor: a header import plus named
// constants, serialized in declaration order
type Document struct {
	consts []docConst
}

type docConst struct {
	name  string
	typ   string
	value Value
}

// NewDocument creates an empty descriptor document
func NewDocument() *Document {
	return &Document{}
}

// AddConst declares a named constant of the given runtime type
func (d *Document) AddConst(name, typ string, value Value) {
	d.consts = append(d.consts, docConst{name: name, typ: typ, value: value})
}

// Serialize renders the document. Identical documents always produce
// byte-identical text: the pool's reuse key derivation depends on it.
func (d *Document) Serialize() string {
	var b strings.Builder
	b.WriteString("using Workerd = import \"/workerd/workerd.capnp\";\n")

	for _, c := range d.consts {
		b.WriteString("\nconst ")
		b.WriteString(c.name)
		b.WriteString(" :")
		b.WriteString(c.typ)
		b.WriteString(" = ")
		c.value.write(&b, "")
		b.WriteString(";\n")
	}

	return b.String()
}

// escapeText escapes a string for embedding as a descriptor text literal
func escapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\x%02x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// sortedKeys returns map keys in deterministic order
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
