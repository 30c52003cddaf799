package sim

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
)

// Vartype names the domain of a model's variables.
type Vartype string

// VartypeSpin is the {-1, +1} variable domain used by Ising rings.
const VartypeSpin Vartype = "SPIN"

// Edge is an undirected coupling between two variables with U < V.
type Edge struct {
	U, V int
}

// newEdge returns the canonical (U < V) form of the pair.
func newEdge(u, v int) Edge {
	if u > v {
		u, v = v, u
	}
	return Edge{U: u, V: v}
}

// BQM is a binary quadratic model over integer-labelled variables 0..N-1.
// Linear biases are indexed by variable; quadratic biases by canonical edge.
type BQM struct {
	Vartype   Vartype
	Linear    []float64
	Quadratic map[Edge]float64
}

// NewRingBQM builds a magnetic 1-D ring: spin i is coupled to spin (i+1) mod N
// with the given coupling strength. A two-spin ring couples the same pair twice,
// so the pair carries twice the coupling, matching accumulate-on-add semantics.
func NewRingBQM(numSpins int, coupling float64) (*BQM, error) {
	if numSpins < 2 {
		return nil, fmt.Errorf("ring needs at least 2 spins, got %d", numSpins)
	}
	bqm := &BQM{
		Vartype:   VartypeSpin,
		Linear:    make([]float64, numSpins),
		Quadratic: make(map[Edge]float64, numSpins),
	}
	for spin := 0; spin < numSpins; spin++ {
		bqm.AddQuadratic(spin, (spin+1)%numSpins, coupling)
	}
	return bqm, nil
}

// AddQuadratic adds bias to the coupling between u and v.
func (b *BQM) AddQuadratic(u, v int, bias float64) {
	b.Quadratic[newEdge(u, v)] += bias
}

// NumVariables returns the number of variables.
func (b *BQM) NumVariables() int {
	return len(b.Linear)
}

// Edges returns the coupled pairs sorted by (U, V).
func (b *BQM) Edges() []Edge {
	edges := make([]Edge, 0, len(b.Quadratic))
	for e := range b.Quadratic {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].U != edges[j].U {
			return edges[i].U < edges[j].U
		}
		return edges[i].V < edges[j].V
	})
	return edges
}

// EdgeList returns Edges as [2]int pairs, the shape embedding finders consume.
func (b *BQM) EdgeList() [][2]int {
	edges := b.Edges()
	out := make([][2]int, len(edges))
	for i, e := range edges {
		out[i] = [2]int{e.U, e.V}
	}
	return out
}

// Energy evaluates the model on a spin assignment indexed by variable. Terms are
// summed in edge order so equal samples give bit-identical energies.
func (b *BQM) Energy(sample []int8) float64 {
	energy := 0.0
	for v, h := range b.Linear {
		energy += h * float64(sample[v])
	}
	for _, e := range b.Edges() {
		energy += b.Quadratic[e] * float64(sample[e.U]) * float64(sample[e.V])
	}
	return energy
}

// Graph returns the model's interaction graph with couplings as edge weights.
func (b *BQM) Graph() *simple.WeightedUndirectedGraph {
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for v := range b.Linear {
		g.AddNode(simple.Node(v))
	}
	for _, e := range b.Edges() {
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(e.U), simple.Node(e.V), b.Quadratic[e]))
	}
	return g
}

// neighbor is one entry of a variable's adjacency list.
type neighbor struct {
	v    int
	bias float64
}

// adjacency returns per-variable neighbor lists in edge order.
func (b *BQM) adjacency() [][]neighbor {
	adj := make([][]neighbor, b.NumVariables())
	for _, e := range b.Edges() {
		j := b.Quadratic[e]
		adj[e.U] = append(adj[e.U], neighbor{v: e.V, bias: j})
		adj[e.V] = append(adj[e.V], neighbor{v: e.U, bias: j})
	}
	return adj
}

// Lambda returns the effective-coupling scale -1.8/J used when comparing
// noise-mitigated runs across coupling strengths.
func Lambda(coupling float64) float64 {
	return -1.8 / coupling
}

// ProblemType selects the experiment flavour.
type ProblemType int

const (
	// ProblemKZ is the plain Kibble-Zurek experiment.
	ProblemKZ ProblemType = iota
	// ProblemKZNoiseMitigated is the Kibble-Zurek experiment with noise mitigation.
	ProblemKZNoiseMitigated
)

// Label returns the human-readable experiment name.
func (p ProblemType) Label() string {
	switch p {
	case ProblemKZ:
		return "Kibble-Zurek Mechanism"
	case ProblemKZNoiseMitigated:
		return "Kibble-Zurek Mechanism with Noise Mitigation"
	default:
		return fmt.Sprintf("ProblemType(%d)", int(p))
	}
}

// ParseProblemType accepts "kz" or "kz_nm", case-insensitively.
func ParseProblemType(s string) (ProblemType, error) {
	switch strings.ToLower(s) {
	case "kz", "":
		return ProblemKZ, nil
	case "kz_nm":
		return ProblemKZNoiseMitigated, nil
	default:
		return 0, fmt.Errorf("unknown problem type %q (want kz or kz_nm)", s)
	}
}
