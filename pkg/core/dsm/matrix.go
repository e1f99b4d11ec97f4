// Package dsm implements the dependency structure matrix describing flow
// transitions between processes. Internally nodes are integer-indexed; the
// name-keyed table with the "X" diagonal sentinel exists only at the file
// and wire boundary.
package dsm

import (
	"fmt"
	"math/rand"
	"strconv"
)

// Node names synthesized around the process chain.
const (
	StartNode = "Start"
	EndNode   = "End"
)

// SelfSentinel marks the diagonal (identity transition) in the external
// table representation.
const SelfSentinel = "X"

// Matrix is a weighted adjacency structure over named nodes. Row i holds the
// outgoing transition weights of node i; the diagonal carries no weight.
type Matrix struct {
	names   []string
	index   map[string]int
	weights [][]float64
}

// New builds a matrix from node names and a square weight table.
func New(names []string, weights [][]float64) (*Matrix, error) {
	if len(weights) != len(names) {
		return nil, fmt.Errorf("dsm: %d weight rows for %d nodes", len(weights), len(names))
	}
	index := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := index[n]; dup {
			return nil, fmt.Errorf("dsm: duplicate node name %q", n)
		}
		index[n] = i
	}
	for i, row := range weights {
		if len(row) != len(names) {
			return nil, fmt.Errorf("dsm: row %q has %d cells, want %d", names[i], len(row), len(names))
		}
	}
	return &Matrix{names: names, index: index, weights: weights}, nil
}

// BuildSimple produces the default strictly sequential chain:
// Start → p1 → p2 → ... → pn → End, each node transitioning to its immediate
// successor with weight 1. The End row has no outgoing edge.
func BuildSimple(processNames []string) *Matrix {
	names := make([]string, 0, len(processNames)+2)
	names = append(names, StartNode)
	names = append(names, processNames...)
	names = append(names, EndNode)

	n := len(names)
	weights := make([][]float64, n)
	for i := range weights {
		weights[i] = make([]float64, n)
		if i+1 < n {
			weights[i][i+1] = 1
		}
	}
	m, _ := New(names, weights)
	return m
}

// Len returns the node count.
func (m *Matrix) Len() int { return len(m.names) }

// Name returns the name of node i.
func (m *Matrix) Name(i int) string { return m.names[i] }

// NodeID resolves a node name to its index.
func (m *Matrix) NodeID(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// Next picks the successor of node `from`. With a single nonzero outgoing
// weight the successor is deterministic; with several, one is drawn
// proportionally to weight from rng. Self transitions are never taken.
// ok is false when the node has no outgoing edge (terminal).
func (m *Matrix) Next(from int, rng *rand.Rand) (int, bool) {
	row := m.weights[from]
	total := 0.0
	last := -1
	count := 0
	for j, w := range row {
		if j == from || w <= 0 {
			continue
		}
		total += w
		last = j
		count++
	}
	if count == 0 {
		return 0, false
	}
	if count == 1 || rng == nil {
		return last, true
	}
	draw := rng.Float64() * total
	for j, w := range row {
		if j == from || w <= 0 {
			continue
		}
		draw -= w
		if draw <= 0 {
			return j, true
		}
	}
	return last, true
}

// Weight returns the transition weight from node i to node j.
func (m *Matrix) Weight(i, j int) float64 { return m.weights[i][j] }

// Table renders the name-keyed external representation, with the diagonal
// marked by the self sentinel.
func (m *Matrix) Table() map[string][]string {
	table := make(map[string][]string, len(m.names))
	for i, name := range m.names {
		row := make([]string, len(m.names))
		for j, w := range m.weights[i] {
			if i == j {
				row[j] = SelfSentinel
				continue
			}
			row[j] = strconv.FormatFloat(w, 'g', -1, 64)
		}
		table[name] = row
	}
	return table
}

// Validate checks that every named process resolves to a node, guarding an
// externally supplied matrix against the process list it will drive.
func (m *Matrix) Validate(processNames []string) error {
	for _, name := range processNames {
		if _, ok := m.index[name]; !ok {
			return fmt.Errorf("dsm: process %q missing from matrix", name)
		}
	}
	return nil
}
