package sim

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// sampleSetType tags the serialized form so job ids can carry sample sets inline.
const sampleSetType = "SampleSet"

// SampleSet is a collection of spin assignments returned by a sampler.
// Samples[i][k] is the value of Variables[k] in read i.
type SampleSet struct {
	Variables      []int
	Samples        [][]int8
	Energies       []float64
	NumOccurrences []int
	Vartype        Vartype
}

// NewSampleSet scores samples against bqm and returns a sample set with one
// occurrence per read. Variables are 0..N-1 in order.
func NewSampleSet(bqm *BQM, samples [][]int8) *SampleSet {
	n := bqm.NumVariables()
	vars := make([]int, n)
	for i := range vars {
		vars[i] = i
	}
	energies := make([]float64, len(samples))
	occ := make([]int, len(samples))
	for i, s := range samples {
		energies[i] = bqm.Energy(s)
		occ[i] = 1
	}
	return &SampleSet{
		Variables:      vars,
		Samples:        samples,
		Energies:       energies,
		NumOccurrences: occ,
		Vartype:        bqm.Vartype,
	}
}

// Len returns the number of reads.
func (s *SampleSet) Len() int {
	return len(s.Samples)
}

// Record returns the samples with columns ordered by ascending variable label,
// the layout KinkStats expects for a ring.
func (s *SampleSet) Record() [][]int8 {
	labels := append([]int(nil), s.Variables...)
	sort.Ints(labels)
	ordered := true
	for k, v := range s.Variables {
		if v != labels[k] {
			ordered = false
			break
		}
	}
	if ordered {
		return s.Samples
	}
	pos := make(map[int]int, len(s.Variables))
	for k, v := range s.Variables {
		pos[v] = k
	}
	out := make([][]int8, len(s.Samples))
	for i, row := range s.Samples {
		out[i] = make([]int8, len(labels))
		for k, v := range labels {
			out[i][k] = row[pos[v]]
		}
	}
	return out
}

// serializedSampleSet is the JSON wire form of a SampleSet.
type serializedSampleSet struct {
	Type           string    `json:"type"`
	Vartype        Vartype   `json:"vartype"`
	VariableLabels []int     `json:"variable_labels"`
	Samples        [][]int8  `json:"samples"`
	Energies       []float64 `json:"energies"`
	NumOccurrences []int     `json:"num_occurrences"`
}

// Serializable encodes the sample set as tagged JSON.
func (s *SampleSet) Serializable() (string, error) {
	data, err := json.Marshal(serializedSampleSet{
		Type:           sampleSetType,
		Vartype:        s.Vartype,
		VariableLabels: s.Variables,
		Samples:        s.Samples,
		Energies:       s.Energies,
		NumOccurrences: s.NumOccurrences,
	})
	if err != nil {
		return "", fmt.Errorf("encoding sample set: %w", err)
	}
	return string(data), nil
}

// SampleSetFromSerializable decodes the output of Serializable.
func SampleSetFromSerializable(data string) (*SampleSet, error) {
	var wire serializedSampleSet
	if err := json.Unmarshal([]byte(data), &wire); err != nil {
		return nil, fmt.Errorf("decoding sample set: %w", err)
	}
	if wire.Type != sampleSetType {
		return nil, fmt.Errorf("decoding sample set: unexpected type %q", wire.Type)
	}
	for i, row := range wire.Samples {
		if len(row) != len(wire.VariableLabels) {
			return nil, fmt.Errorf("decoding sample set: sample %d has %d values for %d variables",
				i, len(row), len(wire.VariableLabels))
		}
	}
	return &SampleSet{
		Variables:      wire.VariableLabels,
		Samples:        wire.Samples,
		Energies:       wire.Energies,
		NumOccurrences: wire.NumOccurrences,
		Vartype:        wire.Vartype,
	}, nil
}

// IsSerializedSampleSet reports whether s looks like the output of Serializable.
// Job ids use this form when sampling ran in-process instead of on a service.
func IsSerializedSampleSet(s string) bool {
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return false
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(s), &head); err != nil {
		return false
	}
	return head.Type == sampleSetType
}
