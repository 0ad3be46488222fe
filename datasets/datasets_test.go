package datasets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifest = `{
  "files": [
    {"filename": "runs.json", "category": "training", "size": 120, "sha256": "abc"},
    {"file": "bench.csv", "category": "micro_benchmarks", "hash": "def", "runtime": "mps"},
    {"filename": "notes.md", "category": "docs"},
    {"filename": "big.parquet", "category": "training"},
    {"filename": "gone.json", "category": "training"}
  ]
}`

func writeDataset(t *testing.T, root, id, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(id))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	root := t.TempDir()
	writeDataset(t, root, ManifestFile, manifest)
	writeDataset(t, root, "training/runs.json", `{"meta": [1], "runs": [{"run": "a", "loss": 1.5}, {"run": "b", "loss": 2}, {"run": "c", "loss": 3}]}`)
	writeDataset(t, root, "micro_benchmarks/bench.csv", "op,ms\nmatmul,1.5\nsoftmax,0.25\n")
	writeDataset(t, root, "docs/notes.md", "# Notes\nline two\r\nline three")
	writeDataset(t, root, "training/big.parquet", "PAR1")

	c, err := LoadCatalog(root)
	require.NoError(t, err)
	return c
}

func TestCatalog(t *testing.T) {
	c := newCatalog(t)
	require.Len(t, c.Entries, 3)
	assert.Equal(t, "docs/notes.md", c.Entries[0].ID)
	assert.Equal(t, "micro_benchmarks/bench.csv", c.Entries[1].ID)
	assert.Equal(t, "training/runs.json", c.Entries[2].ID)
	assert.Equal(t, "micro_benchmarks/bench.csv", c.DefaultID)

	bench, err := c.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, "def", bench.SHA256)
	assert.Equal(t, "mps", bench.Runtime)
	assert.Equal(t, "csv", bench.Extension)

	runs, err := c.Lookup("training/runs.json")
	require.NoError(t, err)
	assert.Equal(t, int64(120), runs.Size)

	_, err = c.Lookup("training/big.parquet")
	assert.ErrorIs(t, err, ErrUnknownDataset)
}

func TestParseManifestErrors(t *testing.T) {
	_, err := ParseManifest(t.TempDir(), []byte("{not json"))
	assert.ErrorIs(t, err, ErrInvalidManifest)

	_, err = ParseManifest(t.TempDir(), []byte(`{"files": "nope"}`))
	assert.ErrorIs(t, err, ErrInvalidManifest)

	c, err := ParseManifest(t.TempDir(), []byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, c.Entries)
	assert.Equal(t, "", c.DefaultID)
}

func TestLoadJSONLargestArrayField(t *testing.T) {
	c := newCatalog(t)
	entry, err := c.Lookup("training/runs.json")
	require.NoError(t, err)

	ds, err := Load(context.Background(), entry, 2)
	require.NoError(t, err)
	assert.Equal(t, KindTable, ds.Kind)
	assert.Equal(t, 3, ds.RowCount)
	require.Len(t, ds.Rows, 2)
	assert.Equal(t, "a", ds.Rows[0]["run"])
	assert.Equal(t, 1.5, ds.Rows[0]["loss"])
	assert.Equal(t, `Using array field "runs" from JSON object. Showing a sample of 2 rows from 3 total rows.`, ds.Note)
	assert.Equal(t, []string{"loss", "run"}, ds.Columns)
	assert.Equal(t, []string{"loss"}, ds.NumericColumns)
}

func TestLoadJSONShapes(t *testing.T) {
	root := t.TempDir()
	cases := []struct {
		name    string
		content string
		rows    int
		note    string
	}{
		{"array.json", `[{"a": 1}, {"a": 2, "b": {"c": 3}}]`, 2, ""},
		{"object.json", `{"a": 1, "b": "x"}`, 1, "JSON object converted to one-row table."},
		{"scalar.json", `42`, 1, "Scalar JSON value converted to one-row table."},
	}
	for _, tc := range cases {
		writeDataset(t, root, tc.name, tc.content)
		ds, err := Load(context.Background(), Entry{ID: tc.name, Extension: "json", Path: filepath.Join(root, tc.name)}, 0)
		require.NoError(t, err, tc.name)
		assert.Len(t, ds.Rows, tc.rows, tc.name)
		assert.Equal(t, tc.note, ds.Note, tc.name)
	}

	writeDataset(t, root, "broken.json", `{"a":`)
	_, err := Load(context.Background(), Entry{ID: "broken.json", Extension: "json", Path: filepath.Join(root, "broken.json")}, 0)
	assert.Error(t, err)
}

func TestLoadCSV(t *testing.T) {
	c := newCatalog(t)
	entry, err := c.Lookup("micro_benchmarks/bench.csv")
	require.NoError(t, err)

	ds, err := Load(context.Background(), entry, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.RowCount)
	require.Len(t, ds.Rows, 2)
	assert.Equal(t, "matmul", ds.Rows[0]["op"])
	assert.Equal(t, "1.5", ds.Rows[0]["ms"])
	assert.Equal(t, []string{"ms"}, ds.NumericColumns)
	assert.Empty(t, ds.Note)
}

func TestLoadText(t *testing.T) {
	c := newCatalog(t)
	entry, err := c.Lookup("docs/notes.md")
	require.NoError(t, err)

	ds, err := Load(context.Background(), entry, 0)
	require.NoError(t, err)
	assert.Equal(t, KindText, ds.Kind)
	assert.Equal(t, 3, ds.LineCount)
	assert.True(t, strings.HasPrefix(ds.TextPreview, "# Notes"))
	assert.Empty(t, ds.Rows)
}

func TestLoadUnsupportedAndCancelled(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "x.parquet", "PAR1")
	_, err := Load(context.Background(), Entry{ID: "x", Extension: "parquet", Path: filepath.Join(root, "x.parquet")}, 0)
	assert.ErrorIs(t, err, ErrUnsupported)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Load(ctx, Entry{ID: "x", Extension: "json", Path: filepath.Join(root, "x.parquet")}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCacheReusesLoads(t *testing.T) {
	var calls int32
	cache := NewCache(func(ctx context.Context, id string, sampleLimit int) (*Dataset, error) {
		atomic.AddInt32(&calls, 1)
		return &Dataset{Entry: Entry{ID: id}, RowCount: sampleLimit}, nil
	}, 10, time.Minute)
	defer cache.Stop()

	ctx := context.Background()
	a, err := cache.Get(ctx, "d", 10)
	require.NoError(t, err)
	b, err := cache.Get(ctx, "d", 10)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = cache.Get(ctx, "d", 20)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "sample limit is part of the key")

	cache.Purge()
	_, err = cache.Get(ctx, "d", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCacheDoesNotKeepFailures(t *testing.T) {
	var calls int32
	boom := errors.New("boom")
	cache := NewCache(func(ctx context.Context, id string, sampleLimit int) (*Dataset, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, boom
		}
		return &Dataset{}, nil
	}, 10, time.Minute)
	defer cache.Stop()

	_, err := cache.Get(context.Background(), "d", 1)
	assert.ErrorIs(t, err, boom)
	_, err = cache.Get(context.Background(), "d", 1)
	assert.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCacheSharesInFlightLoads(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	cache := NewCache(func(ctx context.Context, id string, sampleLimit int) (*Dataset, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &Dataset{}, nil
	}, 10, time.Minute)
	defer cache.Stop()

	var wg sync.WaitGroup
	results := make([]*Dataset, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cache.Get(context.Background(), "d", 1)
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, ds := range results {
		assert.Same(t, results[0], ds)
	}
}

func TestLoadAll(t *testing.T) {
	c := newCatalog(t)
	cache := NewCache(CatalogLoader(c), 10, time.Minute)
	defer cache.Stop()

	results := cache.LoadAll(context.Background(), []string{"training/runs.json", "missing/x.json", "docs/notes.md"}, 0)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 3, results[0].Dataset.RowCount)
	assert.ErrorIs(t, results[1].Err, ErrUnknownDataset)
	assert.Nil(t, results[1].Dataset)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, KindText, results[2].Dataset.Kind)
}
