// Package topology encodes and decodes cell topologies expressed in the
// benchmark's textual grammar.
//
// A cell with N+1 nodes is written as N node clauses joined by "+". Each
// clause lists the incoming edges of one node, separated by "|", and every
// edge is written as "operator~source". Clause i (zero based) describes node
// i+1; node 0 is the cell input:
//
//	|nor_conv_3x3~0|+|nor_conv_3x3~0|avg_pool_3x3~1|+|skip_connect~0|nor_conv_3x3~1|skip_connect~2|
package topology

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedEncoding is returned when a string violates the grammar or names
// an operator outside the vocabulary.
var ErrMalformedEncoding = errors.New("malformed encoding")

// Operator names. The order of ops defines the matrix encoding.
const (
	OpNone       = "none"
	OpSkip       = "skip_connect"
	OpConv1x1    = "nor_conv_1x1"
	OpConv3x3    = "nor_conv_3x3"
	OpAvgPool3x3 = "avg_pool_3x3"
)

var ops = []string{OpNone, OpSkip, OpConv1x1, OpConv3x3, OpAvgPool3x3}

// Ops returns the operator vocabulary in matrix-index order.
func Ops() []string {
	out := make([]string, len(ops))
	copy(out, ops)
	return out
}

// OpIndex returns the matrix index of an operator name.
func OpIndex(name string) (int, bool) {
	for i, op := range ops {
		if op == name {
			return i, true
		}
	}
	return 0, false
}

// Edge is one incoming contribution: Op applied to node Source.
type Edge struct {
	Op     string `json:"op"`
	Source int    `json:"source"`
}

// Node lists the incoming edges of a single node in declaration order.
type Node []Edge

// Topology is the lossless node-list view of an encoding. Topology[i]
// describes node i+1.
type Topology []Node

// NumNodes counts the input node plus one node per clause.
func (t Topology) NumNodes() int { return len(t) + 1 }

// Edges flattens the topology into (target, edge) pairs in declaration order.
func (t Topology) Edges() []TargetEdge {
	var out []TargetEdge
	for i, node := range t {
		for _, e := range node {
			out = append(out, TargetEdge{Target: i + 1, Edge: e})
		}
	}
	return out
}

// TargetEdge pairs an edge with the node it feeds.
type TargetEdge struct {
	Target int
	Edge
}

// String renders the canonical encoding.
func (t Topology) String() string { return Encode(t) }

// CanonicalString lets a decoded topology act as an architecture reference.
func (t Topology) CanonicalString() string { return Encode(t) }

// Decode parses an encoding into its node-list form.
func Decode(text string) (Topology, error) {
	clauses := strings.Split(text, "+")
	out := make(Topology, 0, len(clauses))
	for i, clause := range clauses {
		node, err := parseClause(clause, i+1)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

// Matrix is the adjacency view: Matrix[target][source] holds the operator
// index of the edge. Zero doubles as "none" and "no edge".
type Matrix [][]int

// DecodeMatrix parses an encoding into its square matrix form. When two edges
// of one node share a source, the later edge overwrites the earlier one; use
// Decode when that distinction matters.
func DecodeMatrix(text string) (Matrix, error) {
	clauses := strings.Split(text, "+")
	n := len(clauses) + 1
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]int, n)
	}
	for i, clause := range clauses {
		node, err := parseClause(clause, i+1)
		if err != nil {
			return nil, err
		}
		for _, e := range node {
			idx, _ := OpIndex(e.Op)
			m[i+1][e.Source] = idx
		}
	}
	return m, nil
}

// Encode renders a topology back into the textual grammar.
func Encode(t Topology) string {
	var b strings.Builder
	for i, node := range t {
		if i > 0 {
			b.WriteByte('+')
		}
		b.WriteByte('|')
		for _, e := range node {
			b.WriteString(e.Op)
			b.WriteByte('~')
			b.WriteString(strconv.Itoa(e.Source))
			b.WriteByte('|')
		}
	}
	return b.String()
}

func parseClause(clause string, target int) (Node, error) {
	var node Node
	for _, token := range strings.Split(clause, "|") {
		if token == "" {
			continue
		}
		parts := strings.Split(token, "~")
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: invalid edge %q", ErrMalformedEncoding, token)
		}
		src, err := strconv.Atoi(parts[1])
		if err != nil || src < 0 {
			return nil, fmt.Errorf("%w: invalid source index in %q", ErrMalformedEncoding, token)
		}
		if src >= target {
			return nil, fmt.Errorf("%w: edge %q feeds node %d from a later node", ErrMalformedEncoding, token, target)
		}
		if _, ok := OpIndex(parts[0]); !ok {
			return nil, fmt.Errorf("%w: operator %q not in %v", ErrMalformedEncoding, parts[0], ops)
		}
		node = append(node, Edge{Op: parts[0], Source: src})
	}
	return node, nil
}
