package embedding

import (
	"fmt"
	"sort"

	"github.com/kz-sim/kz-sim/sim"
)

// PhysicalProblem is a model expressed on physical qubits. The BQM is indexed
// compactly 0..M-1; Qubits[k] is the physical label of compact variable k.
type PhysicalProblem struct {
	BQM    *sim.BQM
	Qubits []int
}

// EmbedBQM places a logical model onto qubits using a one-to-one embedding.
// Longer chains would need chain couplings and are rejected with ErrChains.
func EmbedBQM(bqm *sim.BQM, emb Embedding) (*PhysicalProblem, error) {
	if !emb.IsOneToOne() {
		return nil, ErrChains
	}
	qubits := make([]int, 0, bqm.NumVariables())
	for v := 0; v < bqm.NumVariables(); v++ {
		chain, ok := emb[v]
		if !ok {
			return nil, fmt.Errorf("variable %d has no chain", v)
		}
		qubits = append(qubits, chain[0])
	}
	sort.Ints(qubits)
	compact := make(map[int]int, len(qubits))
	for k, q := range qubits {
		if _, dup := compact[q]; dup {
			return nil, fmt.Errorf("qubit %d used twice", q)
		}
		compact[q] = k
	}

	phys := &sim.BQM{
		Vartype:   bqm.Vartype,
		Linear:    make([]float64, len(qubits)),
		Quadratic: make(map[sim.Edge]float64, len(bqm.Quadratic)),
	}
	for v, h := range bqm.Linear {
		phys.Linear[compact[emb[v][0]]] = h
	}
	for _, e := range bqm.Edges() {
		phys.AddQuadratic(compact[emb[e.U][0]], compact[emb[e.V][0]], bqm.Quadratic[e])
	}
	return &PhysicalProblem{BQM: phys, Qubits: qubits}, nil
}

// Unembed maps a sample set labelled by physical qubits back onto the
// logical variables of bqm. Each variable takes the majority value of its
// chain; ties resolve to +1. Energies are recomputed on bqm.
func Unembed(ss *sim.SampleSet, emb Embedding, bqm *sim.BQM) (*sim.SampleSet, error) {
	col := make(map[int]int, len(ss.Variables))
	for k, q := range ss.Variables {
		col[q] = k
	}
	n := bqm.NumVariables()
	chainCols := make([][]int, n)
	for v := 0; v < n; v++ {
		chain, ok := emb[v]
		if !ok || len(chain) == 0 {
			return nil, fmt.Errorf("variable %d has no chain", v)
		}
		for _, q := range chain {
			k, ok := col[q]
			if !ok {
				return nil, fmt.Errorf("variable %d: qubit %d missing from sample set", v, q)
			}
			chainCols[v] = append(chainCols[v], k)
		}
	}

	samples := make([][]int8, len(ss.Samples))
	for i, row := range ss.Samples {
		logical := make([]int8, n)
		for v, cols := range chainCols {
			logical[v] = majority(row, cols)
		}
		samples[i] = logical
	}
	out := sim.NewSampleSet(bqm, samples)
	if len(ss.NumOccurrences) == len(samples) {
		out.NumOccurrences = append([]int(nil), ss.NumOccurrences...)
	}
	return out, nil
}

func majority(row []int8, cols []int) int8 {
	sum := 0
	for _, k := range cols {
		sum += int(row[k])
	}
	if sum < 0 {
		return -1
	}
	return 1
}
