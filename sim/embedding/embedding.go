// Package embedding maps logical ring variables onto physical qubits and back.
//
// The search for an embedding is delegated to an external heuristic through
// the Finder interface; this package only retries it, checks the result and
// applies it.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kz-sim/kz-sim/sim"
)

// DefaultAttempts is the number of searches FindOneToOne makes. The heuristic
// finds a chain-length-one ring embedding in most attempts.
const DefaultAttempts = 5

var (
	// ErrNoEmbedding is returned when no attempt produced a one-to-one embedding.
	ErrNoEmbedding = errors.New("no one-to-one embedding found")

	// ErrChains is returned when an operation needs chains of length one.
	ErrChains = errors.New("embedding has chains longer than one")
)

// Embedding maps each logical variable to the physical qubits realizing it.
type Embedding map[int][]int

// MaxChainLength returns the length of the longest chain (0 for an empty embedding).
func (e Embedding) MaxChainLength() int {
	longest := 0
	for _, chain := range e {
		if len(chain) > longest {
			longest = len(chain)
		}
	}
	return longest
}

// IsOneToOne reports whether every variable maps to exactly one qubit.
func (e Embedding) IsOneToOne() bool {
	if len(e) == 0 {
		return false
	}
	for _, chain := range e {
		if len(chain) != 1 {
			return false
		}
	}
	return true
}

// Qubits returns every physical qubit used, sorted.
func (e Embedding) Qubits() []int {
	var qubits []int
	for _, chain := range e {
		qubits = append(qubits, chain...)
	}
	sort.Ints(qubits)
	return qubits
}

// Identity returns the embedding mapping variable i to qubit i.
func Identity(numVariables int) Embedding {
	e := make(Embedding, numVariables)
	for i := 0; i < numVariables; i++ {
		e[i] = []int{i}
	}
	return e
}

// Finder is an external embedding heuristic: given the source problem's
// edges and the target hardware's couplers, it returns an embedding or an
// error. It may return a partial or long-chained embedding.
type Finder interface {
	FindEmbedding(ctx context.Context, source, target [][2]int) (Embedding, error)
}

// FindOneToOne searches for a chain-length-one embedding of a numSpins ring
// into the hardware couplers, calling finder up to attempts times (0 means
// DefaultAttempts). Finder errors count as failed attempts.
func FindOneToOne(ctx context.Context, finder Finder, numSpins int, hardware [][2]int, attempts int) (Embedding, error) {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	ring, err := sim.NewRingBQM(numSpins, -1)
	if err != nil {
		return nil, err
	}
	source := ring.EdgeList()
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := finder.FindEmbedding(ctx, source, hardware)
		if err != nil {
			logrus.Debugf("embedding attempt %d/%d for %d spins failed: %v", attempt, attempts, numSpins, err)
			continue
		}
		if len(emb) == numSpins && emb.IsOneToOne() {
			logrus.Infof("found one-to-one embedding for %d spins on attempt %d", numSpins, attempt)
			return emb, nil
		}
		logrus.Debugf("embedding attempt %d/%d for %d spins: max chain length %d",
			attempt, attempts, numSpins, emb.MaxChainLength())
	}
	return nil, fmt.Errorf("%d spins after %d attempts: %w", numSpins, attempts, ErrNoEmbedding)
}

// HardwareGraph builds an undirected graph from a coupler list.
func HardwareGraph(couplers [][2]int) *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for _, c := range couplers {
		if c[0] == c[1] {
			continue
		}
		if g.Node(int64(c[0])) == nil {
			g.AddNode(simple.Node(c[0]))
		}
		if g.Node(int64(c[1])) == nil {
			g.AddNode(simple.Node(c[1]))
		}
		g.SetEdge(g.NewEdge(simple.Node(c[0]), simple.Node(c[1])))
	}
	return g
}

// Validate checks that emb realizes bqm on hardware: every variable has a
// non-empty chain, no qubit is shared, each chain is connected, and every
// coupled pair of variables has at least one coupler between their chains.
func Validate(emb Embedding, bqm *sim.BQM, hardware graph.Undirected) error {
	owner := make(map[int]int)
	for v := 0; v < bqm.NumVariables(); v++ {
		chain, ok := emb[v]
		if !ok || len(chain) == 0 {
			return fmt.Errorf("variable %d has no chain", v)
		}
		for _, q := range chain {
			if hardware.Node(int64(q)) == nil {
				return fmt.Errorf("variable %d: qubit %d not in hardware graph", v, q)
			}
			if prev, dup := owner[q]; dup {
				return fmt.Errorf("qubit %d used by variables %d and %d", q, prev, v)
			}
			owner[q] = v
		}
		if !chainConnected(chain, hardware) {
			return fmt.Errorf("variable %d: chain %v is not connected", v, chain)
		}
	}
	for _, e := range bqm.Edges() {
		if !chainsCoupled(emb[e.U], emb[e.V], hardware) {
			return fmt.Errorf("no coupler between chains of variables %d and %d", e.U, e.V)
		}
	}
	return nil
}

func chainConnected(chain []int, hardware graph.Undirected) bool {
	if len(chain) <= 1 {
		return true
	}
	in := make(map[int]bool, len(chain))
	for _, q := range chain {
		in[q] = true
	}
	seen := map[int]bool{chain[0]: true}
	stack := []int{chain[0]}
	for len(stack) > 0 {
		q := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes := hardware.From(int64(q))
		for nodes.Next() {
			n := int(nodes.Node().ID())
			if in[n] && !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return len(seen) == len(chain)
}

func chainsCoupled(a, b []int, hardware graph.Undirected) bool {
	for _, qa := range a {
		for _, qb := range b {
			if hardware.HasEdgeBetween(int64(qa), int64(qb)) {
				return true
			}
		}
	}
	return false
}
