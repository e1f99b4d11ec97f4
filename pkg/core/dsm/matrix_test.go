package dsm

import (
	"math/rand"
	"strings"
	"testing"
)

func TestBuildSimple_Shape(t *testing.T) {
	m := BuildSimple([]string{"A", "B", "C"})

	if m.Len() != 5 {
		t.Fatalf("expected 5 nodes (Start, A, B, C, End), got %d", m.Len())
	}
	if m.Name(0) != StartNode || m.Name(4) != EndNode {
		t.Errorf("expected Start/End at the edges, got %q/%q", m.Name(0), m.Name(4))
	}

	// row i transitions only to column i+1; the End row is terminal
	for i := 0; i < m.Len(); i++ {
		for j := 0; j < m.Len(); j++ {
			want := 0.0
			if j == i+1 {
				want = 1.0
			}
			if m.Weight(i, j) != want {
				t.Errorf("weight[%d][%d] = %f, want %f", i, j, m.Weight(i, j), want)
			}
		}
	}

	end, _ := m.NodeID(EndNode)
	if _, ok := m.Next(end, nil); ok {
		t.Error("End node must have no outgoing edge")
	}
}

func TestBuildSimple_ChainTraversal(t *testing.T) {
	m := BuildSimple([]string{"A", "B"})
	cur, _ := m.NodeID(StartNode)
	var visited []string
	for {
		next, ok := m.Next(cur, nil)
		if !ok {
			break
		}
		cur = next
		visited = append(visited, m.Name(cur))
	}
	want := []string{"A", "B", EndNode}
	if len(visited) != len(want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visited %v, want %v", visited, want)
		}
	}
}

func TestNext_WeightedDraw(t *testing.T) {
	m, err := New(
		[]string{"A", "B", "C"},
		[][]float64{
			{0, 3, 1},
			{0, 0, 1},
			{0, 0, 0},
		},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	counts := map[int]int{}
	for i := 0; i < 1000; i++ {
		next, ok := m.Next(0, rng)
		if !ok {
			t.Fatal("node A must have successors")
		}
		counts[next]++
	}
	// weight 3:1 split; allow generous slack
	if counts[1] < 650 || counts[2] < 150 {
		t.Errorf("draw distribution off: %v", counts)
	}
}

func TestNew_DimensionMismatch(t *testing.T) {
	_, err := New([]string{"A", "B"}, [][]float64{{0, 1}})
	if err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestLoadCSV(t *testing.T) {
	input := strings.Join([]string{
		"Process,Start,A,End",
		"Start,X,1,",
		"A,,X,1",
		"End,0,NaN,X",
	}, "\n")

	m, err := LoadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	if m.Len() != 3 {
		t.Fatalf("expected 3 nodes, got %d", m.Len())
	}
	if m.Weight(0, 1) != 1 || m.Weight(1, 2) != 1 {
		t.Error("chain weights not parsed")
	}
	// blank, NaN and sentinel cells normalize to zero
	if m.Weight(0, 2) != 0 || m.Weight(2, 1) != 0 || m.Weight(0, 0) != 0 {
		t.Error("blank/NaN/sentinel cells must normalize to 0")
	}
}

func TestLoadCSV_RowTooWide(t *testing.T) {
	input := "Process,A,B\nA,1,2,3,4\nB,0,0\n"
	if _, err := LoadCSV(strings.NewReader(input)); err == nil {
		t.Fatal("expected dimension error for overlong row")
	}
}

func TestValidate(t *testing.T) {
	m := BuildSimple([]string{"A"})
	if err := m.Validate([]string{"A"}); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if err := m.Validate([]string{"Missing"}); err == nil {
		t.Fatal("expected missing-node error")
	}
}

func TestTable_SelfSentinel(t *testing.T) {
	m := BuildSimple([]string{"A"})
	table := m.Table()
	row, ok := table["A"]
	if !ok {
		t.Fatal("table missing node A")
	}
	if row[1] != SelfSentinel {
		t.Errorf("diagonal cell = %q, want %q", row[1], SelfSentinel)
	}
}
