// Package deltasync updates a local tree of files from a remote one,
// downloading only the chunks no local file already holds.
package deltasync

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zhengshuai-xiao/fidxsync/internal"
	"github.com/zhengshuai-xiao/fidxsync/pkg/fidx"
)

var logger = internal.GetLogger("deltasync")

// Handle identifies a source within a Corpus.
type Handle int

// Source is a local data file together with its index.
type Source struct {
	// Name is the index file name relative to the local directory.
	Name     string
	DataPath string
	Index    *fidx.Index
}

// Mapping says where a chunk with Sum can be read locally.
type Mapping struct {
	Sum    fidx.Sum
	Handle Handle
	Offset int64
	Size   uint16
}

// Corpus is every chunk of every local index, sorted by hash. It is not
// modified after NewCorpus returns.
type Corpus struct {
	sources  []Source
	byName   map[string]Handle
	mappings []Mapping
}

func NewCorpus(sources []Source) *Corpus {
	c := &Corpus{
		sources: sources,
		byName:  make(map[string]Handle, len(sources)),
	}
	n := 0
	for _, src := range sources {
		n += len(src.Index.Entries)
	}
	c.mappings = make([]Mapping, 0, n)
	for h, src := range sources {
		c.byName[src.Name] = Handle(h)
		var ofs int64
		for _, e := range src.Index.Entries {
			c.mappings = append(c.mappings, Mapping{Sum: e.Sum, Handle: Handle(h), Offset: ofs, Size: e.Size})
			ofs += int64(e.Size)
		}
	}
	sort.SliceStable(c.mappings, func(i, j int) bool {
		return bytes.Compare(c.mappings[i].Sum[:], c.mappings[j].Sum[:]) < 0
	})
	logger.Debugf("corpus of %d sources, %d chunks", len(sources), len(c.mappings))
	return c
}

// Lookup finds some local copy of the chunk with hash sum. The bytes behind
// it may have changed since indexing, so callers re-hash before use.
func (c *Corpus) Lookup(sum fidx.Sum) (Mapping, bool) {
	i := sort.Search(len(c.mappings), func(i int) bool {
		return bytes.Compare(c.mappings[i].Sum[:], sum[:]) >= 0
	})
	if i < len(c.mappings) && c.mappings[i].Sum == sum {
		return c.mappings[i], true
	}
	return Mapping{}, false
}

func (c *Corpus) Source(h Handle) Source {
	return c.sources[h]
}

// Handle returns the source loaded from the index called name.
func (c *Corpus) Handle(name string) (Handle, bool) {
	h, ok := c.byName[name]
	return h, ok
}

// Len is the number of chunks.
func (c *Corpus) Len() int {
	return len(c.mappings)
}

func (c *Corpus) Sources() int {
	return len(c.sources)
}

// LoadCorpus loads the index of every data file in localDir plus the
// indices of names, regenerating missing or stale ones. Files that cannot
// be indexed are logged and left out.
func LoadCorpus(localDir string, names []string) (*Corpus, error) {
	candidates := internal.NewStringSet()
	for _, name := range names {
		candidates.Add(name)
	}
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fidx.Ext) {
			continue
		}
		candidates.Add(name)
	}

	var sources []Source
	for _, name := range candidates.Elements() {
		indexPath := filepath.Join(localDir, name)
		dataPath := fidx.DataName(indexPath)
		if !internal.Exists(dataPath) {
			logger.Debugf("no local data for %s", name)
			continue
		}
		idx, regenerated, err := fidx.LoadOrRegenerate(dataPath, indexPath)
		if err != nil {
			logger.Warnf("leaving %s out of the corpus: %v", name, err)
			continue
		}
		if regenerated {
			logger.Infof("regenerated %s", name)
		}
		sources = append(sources, Source{Name: name, DataPath: dataPath, Index: idx})
	}
	return NewCorpus(sources), nil
}
