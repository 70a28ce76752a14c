package sexpr

import (
	"strconv"
	"strings"
)

// Write renders n back to source text. For a Quoted node produced by the
// reader, Write re-emits n.Text (the verbatim original span) rather than
// reconstructing it from Children, which keeps whole-file rewrites
// byte-stable for every form the writer didn't itself need to change.
func Write(n Node) string {
	if n.Text != "" && (n.Kind == Quoted || n.Kind == StringLit) {
		return n.Text
	}
	var sb strings.Builder
	write(&sb, n)
	return sb.String()
}

func write(sb *strings.Builder, n Node) {
	switch n.Kind {
	case Symbol:
		sb.WriteString(n.Str)
	case Keyword:
		sb.WriteByte(':')
		sb.WriteString(n.Str)
	case StringLit:
		sb.WriteByte('"')
		sb.WriteString(escapeString(n.Str))
		sb.WriteByte('"')
	case Number:
		sb.WriteString(strconv.FormatFloat(n.Num, 'g', -1, 64))
	case Bool:
		if n.BoolVal {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case Nil:
		sb.WriteString("nil")
	case List:
		writeSeq(sb, '(', ')', n.Children)
	case Vector:
		writeSeq(sb, '[', ']', n.Children)
	case Map:
		sb.WriteByte('{')
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteByte(' ')
			}
			write(sb, c)
		}
		sb.WriteByte('}')
	case Quoted:
		sb.WriteByte('\'')
		write(sb, n.Children[0])
	}
}

func writeSeq(sb *strings.Builder, open, close byte, children []Node) {
	sb.WriteByte(open)
	for i, c := range children {
		if i > 0 {
			sb.WriteByte(' ')
		}
		write(sb, c)
	}
	sb.WriteByte(close)
}

func escapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// NewSymbol, NewString, NewNumber, NewList are convenience constructors used
// by callers building fresh forms (for example create-entity) that have no
// original source to preserve.
func NewSymbol(s string) Node     { return Node{Kind: Symbol, Str: s} }
func NewString(s string) Node     { return Node{Kind: StringLit, Str: s} }
func NewNumber(f float64) Node    { return Node{Kind: Number, Num: f} }
func NewKeyword(s string) Node    { return Node{Kind: Keyword, Str: s} }
func NewList(items ...Node) Node  { return Node{Kind: List, Children: items} }
func NewVector(items ...Node) Node { return Node{Kind: Vector, Children: items} }
func NewMap(pairs ...MapPair) Node {
	children := make([]Node, 0, len(pairs)*2)
	for _, p := range pairs {
		children = append(children, p.Key, p.Value)
	}
	return Node{Kind: Map, Children: children}
}
