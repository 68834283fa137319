package fonts

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/observability"
)

// Cache memoizes extracted fonts per font dictionary for one document.
// Concurrent first requests for the same font share one extraction.
type Cache struct {
	logger observability.Logger
	group  singleflight.Group

	mu    sync.Mutex
	fonts map[string]*ExtractedFont
	order []string
}

// NewCache returns an empty cache. logger may be nil.
func NewCache(logger observability.Logger) *Cache {
	return &Cache{
		logger: observability.OrNop(logger),
		fonts:  make(map[string]*ExtractedFont),
	}
}

// fontKey names a font dictionary: its object id when indirect, else the
// dictionary's address.
func fontKey(ref raw.ObjectRef, dict *raw.DictObj) string {
	if !ref.IsZero() {
		return fmt.Sprintf("%d_%d", ref.Num, ref.Gen)
	}
	return fmt.Sprintf("d%p", dict)
}

// Extract returns the font for a dictionary reached by reference ref,
// which is zero for direct dictionaries. A substituted font is returned
// together with its FontError warning.
func (c *Cache) Extract(ctx context.Context, doc *raw.Document, ref raw.ObjectRef, dict *raw.DictObj) (*ExtractedFont, error) {
	key := fontKey(ref, dict)
	c.mu.Lock()
	f, ok := c.fonts[key]
	c.mu.Unlock()
	if ok {
		return f, f.Warning
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		f, ok := c.fonts[key]
		c.mu.Unlock()
		if ok {
			return f, nil
		}
		f, err := extract(ctx, doc, key, dict)
		if err != nil {
			return nil, err
		}
		if f.Warning != nil {
			c.logger.Warn("font substituted",
				observability.String("font", f.BaseFont),
				observability.Err(f.Warning))
		} else {
			c.logger.Debug("font extracted",
				observability.String("font", f.BaseFont),
				observability.String("kind", f.Kind.String()))
		}
		c.mu.Lock()
		c.fonts[key] = f
		c.order = append(c.order, key)
		c.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	f = v.(*ExtractedFont)
	return f, f.Warning
}

// Font implements contentstream.FontSource. Type3 fonts are returned with
// their glyph procedures exposed.
func (c *Cache) Font(ctx context.Context, doc *raw.Document, ref raw.ObjectRef, dict *raw.DictObj) (contentstream.Font, error) {
	f, err := c.Extract(ctx, doc, ref, dict)
	if f == nil {
		return nil, err
	}
	if f.Kind == ProgramType3 {
		return type3Font{f}, err
	}
	return f, err
}

// Fonts returns the extracted fonts ordered by key.
func (c *Cache) Fonts() []*ExtractedFont {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := append([]string(nil), c.order...)
	sort.Strings(keys)
	out := make([]*ExtractedFont, len(keys))
	for i, k := range keys {
		out[i] = c.fonts[k]
	}
	return out
}
