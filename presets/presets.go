// Package presets provides ready-made grammars for common formats. The
// grammars are ordinary descriptions embedded in the binary; nothing in the
// engine treats them specially.
package presets

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/streamparse/failure"
	"github.com/dhamidi/streamparse/grammar"
)

//go:embed grammars/*.yaml
var embeddedFS embed.FS

var log = commonlog.GetLogger("streamparse.presets")

// DefaultCacheSize is the number of built grammars the default cache keeps.
const DefaultCacheSize = 64

// Cache builds grammars from presets and files and keeps the most recently
// used ones. It is safe for concurrent use.
type Cache struct {
	fs    fs.FS
	built *lru.Cache[string, *grammar.Grammar]
}

// NewCache creates a cache holding at most size grammars.
func NewCache(size int) (*Cache, error) {
	built, err := lru.New[string, *grammar.Grammar](size)
	if err != nil {
		return nil, fmt.Errorf("grammar cache: %w", err)
	}
	return &Cache{fs: mustSub(embeddedFS, "grammars"), built: built}, nil
}

var defaultCache = mustCache(DefaultCacheSize)

func mustCache(size int) *Cache {
	c, err := NewCache(size)
	if err != nil {
		panic(err)
	}
	return c
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Names lists the preset names in alphabetical order.
func (c *Cache) Names() []string {
	entries, err := fs.ReadDir(c.fs, ".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".yaml" {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names
}

// Source returns the description text of a preset.
func (c *Cache) Source(name string) ([]byte, error) {
	data, err := fs.ReadFile(c.fs, name+".yaml")
	if err != nil {
		return nil, failure.New(failure.KindInvalidArgument, failure.NoOffset,
			"unknown format %q, known formats: %s", name, strings.Join(c.Names(), ", "))
	}
	return data, nil
}

// Lookup returns the built grammar of a preset.
func (c *Cache) Lookup(name string) (*grammar.Grammar, error) {
	key := "preset:" + name
	if g, ok := c.built.Get(key); ok {
		return g, nil
	}
	data, err := c.Source(name)
	if err != nil {
		return nil, err
	}
	desc, err := grammar.ParseDescription(data, grammar.FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", name, err)
	}
	g, err := grammar.Build(desc)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", name, err)
	}
	c.built.Add(key, g)
	log.Debugf("built preset %s", g)
	return g, nil
}

// LoadFile builds the grammar described by the file at p. The result is
// cached by path and content, so an edited file is rebuilt.
func (c *Cache) LoadFile(p string) (*grammar.Grammar, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read grammar: %w", err)
	}
	key := fmt.Sprintf("file:%s:%016x", p, xxhash.Sum64(data))
	if g, ok := c.built.Get(key); ok {
		return g, nil
	}
	desc, err := grammar.ParseFile(p, data)
	if err != nil {
		return nil, err
	}
	g, err := grammar.Build(desc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	c.built.Add(key, g)
	log.Debugf("built %s from %s", g, p)
	return g, nil
}

// Resolve returns the grammar named by exactly one of a file path and a
// preset name.
func (c *Cache) Resolve(file, format string) (*grammar.Grammar, error) {
	switch {
	case file != "" && format != "":
		return nil, failure.New(failure.KindInvalidArgument, failure.NoOffset, "give either a grammar file or a format, not both")
	case file != "":
		return c.LoadFile(file)
	case format != "":
		return c.Lookup(format)
	default:
		return nil, failure.New(failure.KindInvalidArgument, failure.NoOffset, "no grammar given")
	}
}

// Len returns the number of cached grammars.
func (c *Cache) Len() int {
	return c.built.Len()
}

// Names lists the preset names of the default cache.
func Names() []string { return defaultCache.Names() }

// Source returns the description text of a preset.
func Source(name string) ([]byte, error) { return defaultCache.Source(name) }

// Lookup returns the built grammar of a preset from the default cache.
func Lookup(name string) (*grammar.Grammar, error) { return defaultCache.Lookup(name) }

// LoadFile builds a grammar file through the default cache.
func LoadFile(p string) (*grammar.Grammar, error) { return defaultCache.LoadFile(p) }

// Resolve resolves a grammar file or preset name through the default cache.
func Resolve(file, format string) (*grammar.Grammar, error) {
	return defaultCache.Resolve(file, format)
}
