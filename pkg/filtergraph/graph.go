// Package filtergraph models an ffmpeg -filter_complex graph as typed nodes.
// Nodes are only turned into filtergraph text by Graph.String, which is the
// single place where quoting and escaping happen.
package filtergraph

import (
	"fmt"
	"strconv"
	"strings"
)

// Label names a link between graph nodes, e.g. "canvas" or "0:v"
type Label string

// String renders the label in link syntax, e.g. "[canvas]"
func (l Label) String() string {
	return "[" + string(l) + "]"
}

// StreamKind selects the video or audio stream of a media input
type StreamKind string

const (
	StreamVideo StreamKind = "v"
	StreamAudio StreamKind = "a"
)

// InputStream returns the label of a media input's stream, e.g. "2:v"
func InputStream(index int, kind StreamKind) Label {
	return Label(fmt.Sprintf("%d:%s", index, kind))
}

// Value is a typed filter option value
type Value interface {
	render() string
}

// Int is an integer option value
type Int int

func (v Int) render() string { return strconv.Itoa(int(v)) }

// Float is a decimal option value rendered in its shortest form
type Float float64

func (v Float) render() string { return strconv.FormatFloat(float64(v), 'f', -1, 64) }

// Raw is emitted verbatim. Use it for tokens that cannot contain
// separators, e.g. colours, sizes or arithmetic like "960-tw/2".
type Raw string

func (v Raw) render() string { return string(v) }

// Expr is an expression that may contain commas; it is single-quoted so it
// does not split the filter chain.
type Expr string

func (v Expr) render() string { return "'" + string(v) + "'" }

// Text is a literal string (e.g. drawtext content or a font name). It is
// written unquoted and escaped twice: once for the option parser, which
// splits on ':', and once for the graph parser, which splits on '[],;'.
type Text string

func (v Text) render() string { return EscapeText(string(v)) }

const (
	optionSpecials = `\':`
	graphSpecials  = `\'[],;`
	whitespace     = " \t\n\r"
)

// EscapeText escapes s so that ffmpeg reads it back unchanged as a single
// option value inside a filter graph.
func EscapeText(s string) string {
	return escape(escape(s, optionSpecials), graphSpecials)
}

// escape backslash-escapes every byte of s found in specials, plus the
// leading and trailing whitespace a token parser would trim.
func escape(s, specials string) string {
	lead := len(s) - len(strings.TrimLeft(s, whitespace))
	trail := len(strings.TrimRight(s, whitespace))

	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(specials, c) >= 0 || i < lead || i >= trail {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Arg is a single filter option. An empty Key makes it positional.
type Arg struct {
	Key   string
	Value Value
}

// KV creates a named option
func KV(key string, v Value) Arg {
	return Arg{Key: key, Value: v}
}

// Pos creates a positional option
func Pos(v Value) Arg {
	return Arg{Value: v}
}

// Filter is one filter invocation inside a node's chain
type Filter struct {
	Name string
	Args []Arg
}

// NewFilter creates a filter with the given options
func NewFilter(name string, args ...Arg) Filter {
	return Filter{Name: name, Args: args}
}

// Arg returns the value of a named option
func (f Filter) Arg(key string) (Value, bool) {
	for _, a := range f.Args {
		if a.Key == key {
			return a.Value, true
		}
	}
	return nil, false
}

func (f Filter) render(b *strings.Builder) {
	b.WriteString(f.Name)
	for i, a := range f.Args {
		if i == 0 {
			b.WriteByte('=')
		} else {
			b.WriteByte(':')
		}
		if a.Key != "" {
			b.WriteString(a.Key)
			b.WriteByte('=')
		}
		b.WriteString(a.Value.render())
	}
}

// Node consumes zero or more labels, runs a linear chain of filters and
// produces exactly one label.
type Node struct {
	Inputs []Label
	Chain  []Filter
	Output Label
}

// Has reports whether the node's chain contains the named filter
func (n *Node) Has(name string) bool {
	_, ok := n.Filter(name)
	return ok
}

// Filter returns the first filter with the given name in the chain
func (n *Node) Filter(name string) (Filter, bool) {
	for _, f := range n.Chain {
		if f.Name == name {
			return f, true
		}
	}
	return Filter{}, false
}

func (n *Node) render(b *strings.Builder) {
	for _, in := range n.Inputs {
		b.WriteString(in.String())
	}
	for i, f := range n.Chain {
		if i > 0 {
			b.WriteByte(',')
		}
		f.render(b)
	}
	b.WriteString(n.Output.String())
	b.WriteByte(';')
}

// Graph is an ordered list of nodes over a fixed number of media inputs
type Graph struct {
	Nodes []*Node

	// MediaInputs is the number of media files bound to the invocation.
	// Input labels "N:v"/"N:a" are only valid for N < MediaInputs.
	MediaInputs int
}

// New creates an empty graph over the given number of media inputs
func New(mediaInputs int) *Graph {
	return &Graph{MediaInputs: mediaInputs}
}

// Add appends a node and returns the label it produces
func (g *Graph) Add(inputs []Label, output Label, chain ...Filter) Label {
	g.Nodes = append(g.Nodes, &Node{
		Inputs: inputs,
		Chain:  chain,
		Output: output,
	})
	return output
}

// Producer returns the node that produces label
func (g *Graph) Producer(label Label) *Node {
	for _, n := range g.Nodes {
		if n.Output == label {
			return n
		}
	}
	return nil
}

// NodesWith returns all nodes whose chain contains the named filter
func (g *Graph) NodesWith(name string) []*Node {
	var result []*Node
	for _, n := range g.Nodes {
		if n.Has(name) {
			result = append(result, n)
		}
	}
	return result
}

// String renders the graph as -filter_complex text
func (g *Graph) String() string {
	var b strings.Builder
	for _, n := range g.Nodes {
		n.render(&b)
	}
	return b.String()
}
