package embedding

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePath(t *testing.T) {
	assert.Equal(t, filepath.Join("helpers", "emb_Advantage_system4.1.json"), CachePath("helpers", "Advantage_system4.1"))
	assert.Equal(t, filepath.Join("d", "emb_a_b_c_d.json"), CachePath("d", "a/b:c d"))
}

func TestLoadCache_MissingFileIsEmpty(t *testing.T) {
	c, err := LoadCache(filepath.Join(t.TempDir(), "emb_none.json"))
	require.NoError(t, err)
	assert.Empty(t, c.Sizes())
	_, ok := c.Get(512)
	assert.False(t, ok)
}

func TestDecodeCache_ConvertsStringKeys(t *testing.T) {
	data := []byte(`{"4": {"0": [30], "1": [31], "2": [32], "3": [33]}, "2": {"0": [5], "1": [6]}}`)
	got, err := DecodeCache(data)
	require.NoError(t, err)
	want := map[int]Embedding{
		4: {0: {30}, 1: {31}, 2: {32}, 3: {33}},
		2: {0: {5}, 1: {6}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeCache mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeCache_Errors(t *testing.T) {
	for _, in := range []string{`not json`, `{"four": {}}`, `{"4": {"zero": [1]}}`} {
		_, err := DecodeCache([]byte(in))
		assert.Error(t, err, "input %s", in)
	}
}

func TestCache_SaveRoundTrip(t *testing.T) {
	path := CachePath(filepath.Join(t.TempDir(), "nested"), "local-sa")
	c, err := LoadCache(path)
	require.NoError(t, err)

	c.Put(8, Identity(8))
	c.Put(4, Embedding{0: {9}, 1: {10}, 2: {11}, 3: {12}})
	require.NoError(t, c.Save())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file must be renamed away")

	back, err := LoadCache(path)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8}, back.Sizes())
	emb, ok := back.Get(4)
	require.True(t, ok)
	assert.Equal(t, Embedding{0: {9}, 1: {10}, 2: {11}, 3: {12}}, emb)
}

func TestLoadCache_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emb_bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := LoadCache(path)
	assert.Error(t, err)
}
