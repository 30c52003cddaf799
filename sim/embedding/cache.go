package embedding

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Cache holds embeddings found for one solver, keyed by ring size. On disk it
// is JSON with string keys: {"<num_spins>": {"<variable>": [qubit, ...]}}.
type Cache struct {
	path    string
	entries map[int]Embedding
}

// CachePath returns the cache file for a solver inside dir. Characters that
// are awkward in file names are replaced.
func CachePath(dir, solver string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, solver)
	return filepath.Join(dir, "emb_"+safe+".json")
}

// LoadCache reads the cache at path. A missing file yields an empty cache.
func LoadCache(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[int]Embedding)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading embedding cache: %w", err)
	}
	entries, err := DecodeCache(data)
	if err != nil {
		return nil, fmt.Errorf("embedding cache %s: %w", path, err)
	}
	c.entries = entries
	return c, nil
}

// DecodeCache converts the string-keyed JSON form into integer-keyed embeddings.
func DecodeCache(data []byte) (map[int]Embedding, error) {
	var raw map[string]map[string][]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding embeddings: %w", err)
	}
	out := make(map[int]Embedding, len(raw))
	for key, emb := range raw {
		size, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("ring size key %q: %w", key, err)
		}
		converted := make(Embedding, len(emb))
		for node, qubits := range emb {
			v, err := strconv.Atoi(node)
			if err != nil {
				return nil, fmt.Errorf("ring size %d: variable key %q: %w", size, node, err)
			}
			converted[v] = qubits
		}
		out[size] = converted
	}
	return out, nil
}

// Get returns the embedding stored for a ring size.
func (c *Cache) Get(numSpins int) (Embedding, bool) {
	emb, ok := c.entries[numSpins]
	return emb, ok
}

// Put stores an embedding for a ring size. Call Save to persist it.
func (c *Cache) Put(numSpins int, emb Embedding) {
	c.entries[numSpins] = emb
}

// Sizes returns the cached ring sizes in ascending order.
func (c *Cache) Sizes() []int {
	sizes := make([]int, 0, len(c.entries))
	for n := range c.entries {
		sizes = append(sizes, n)
	}
	sort.Ints(sizes)
	return sizes
}

// Save writes the cache back to its file, replacing it atomically.
func (c *Cache) Save() error {
	raw := make(map[string]map[string][]int, len(c.entries))
	for size, emb := range c.entries {
		m := make(map[string][]int, len(emb))
		for v, qubits := range emb {
			m[strconv.Itoa(v)] = qubits
		}
		raw[strconv.Itoa(size)] = m
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding embeddings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing embedding cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replacing embedding cache: %w", err)
	}
	return nil
}
