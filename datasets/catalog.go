package datasets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const ManifestFile = "manifest.json"

var (
	ErrInvalidManifest = errors.New("invalid dataset manifest")
	ErrUnknownDataset  = errors.New("unknown dataset id")
	ErrUnsupported     = errors.New("unsupported dataset extension")
)

// Extensions the loader can read. Parquet files are listed in manifests but
// need a columnar reader and are skipped.
var SupportedExtensions = map[string]bool{
	"json": true,
	"csv":  true,
	"md":   true,
	"txt":  true,
}

type Entry struct {
	ID         string `json:"id"`
	Category   string `json:"category"`
	Filename   string `json:"filename"`
	Extension  string `json:"extension"`
	Size       int64  `json:"size"`
	SHA256     string `json:"sha256"`
	ImportedAt string `json:"imported_at"`
	Runtime    string `json:"runtime"`
	Path       string `json:"-"`
}

type Catalog struct {
	Root      string
	Entries   []Entry
	DefaultID string

	byID map[string]Entry
}

func fileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// LoadCatalog reads root/manifest.json. Dataset files live under
// root/<category>/<filename>.
func LoadCatalog(root string) (*Catalog, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestFile))
	if err != nil {
		return nil, err
	}
	return ParseManifest(root, data)
}

func ParseManifest(root string, data []byte) (*Catalog, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidManifest)
	}
	files := gjson.GetBytes(data, "files")
	if files.Exists() && !files.IsArray() {
		return nil, fmt.Errorf("%w: files must be an array", ErrInvalidManifest)
	}

	c := &Catalog{Root: root, byID: map[string]Entry{}}
	files.ForEach(func(_, f gjson.Result) bool {
		filename := f.Get("filename").String()
		if filename == "" {
			filename = f.Get("file").String()
		}
		category := f.Get("category").String()
		if category == "" {
			category = "uncategorized"
		}
		sha := f.Get("sha256").String()
		if sha == "" {
			sha = f.Get("hash").String()
		}
		entry := Entry{
			ID:         category + "/" + filename,
			Category:   category,
			Filename:   filename,
			Extension:  fileExtension(filename),
			Size:       f.Get("size").Int(),
			SHA256:     sha,
			ImportedAt: f.Get("imported_at").String(),
			Runtime:    f.Get("runtime").String(),
			Path:       filepath.Join(root, category, filename),
		}

		if !SupportedExtensions[entry.Extension] {
			log.Debugf("skip %s: extension %q", entry.ID, entry.Extension)
			return true
		}
		if _, err := os.Stat(entry.Path); err != nil {
			log.Debugf("skip %s: %v", entry.ID, err)
			return true
		}
		if _, ok := c.byID[entry.ID]; ok {
			return true
		}
		c.byID[entry.ID] = entry
		c.Entries = append(c.Entries, entry)
		return true
	})

	sort.SliceStable(c.Entries, func(i, j int) bool {
		a, b := c.Entries[i], c.Entries[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Filename < b.Filename
	})

	for _, e := range c.Entries {
		if strings.Contains(e.ID, "micro_benchmarks") {
			c.DefaultID = e.ID
			break
		}
	}
	if c.DefaultID == "" && len(c.Entries) > 0 {
		c.DefaultID = c.Entries[0].ID
	}
	log.Infof("Catalog %s: %d datasets, default %q", root, len(c.Entries), c.DefaultID)
	return c, nil
}

// Lookup resolves id, or the default dataset when id is empty.
func (c *Catalog) Lookup(id string) (Entry, error) {
	if id == "" {
		id = c.DefaultID
	}
	e, ok := c.byID[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownDataset, id)
	}
	return e, nil
}
