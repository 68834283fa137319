package convert

import (
	"context"
	"sort"

	"github.com/wudi/pdf2html/fonts"
	"github.com/wudi/pdf2html/ir"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/observability"
)

// Info summarizes a document without converting it.
type Info struct {
	Version   string     `yaml:"version"`
	Encrypted bool       `yaml:"encrypted"`
	Repaired  bool       `yaml:"repaired"`
	Objects   int        `yaml:"objects"`
	Pages     int        `yaml:"pages"`
	Declared  int        `yaml:"declared_pages,omitempty"`
	Sizes     []PageSize `yaml:"sizes"`
	Fonts     []FontInfo `yaml:"fonts"`
}

// PageSize is a displayed page size shared by Count pages.
type PageSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Count  int     `yaml:"count"`
}

type FontInfo struct {
	Name        string `yaml:"name"`
	Subtype     string `yaml:"subtype"`
	Program     string `yaml:"program"`
	Composite   bool   `yaml:"composite,omitempty"`
	Substituted bool   `yaml:"substituted,omitempty"`
	Warning     string `yaml:"warning,omitempty"`
	// Pages counts the pages whose resources name the font.
	Pages int `yaml:"pages"`
}

// Inspect parses data and reports its structure, page sizes and the
// fonts named by page resources. Form XObject resources are not
// searched.
func Inspect(ctx context.Context, data []byte, opts Options) (*Info, error) {
	opts = opts.withDefaults()
	doc, err := ir.NewDefault(
		ir.WithLimits(opts.Limits),
		ir.WithPassword(opts.Password),
		ir.WithRecovery(opts.Strategy),
		ir.WithLogger(opts.Logger),
		ir.WithTracer(opts.Tracer),
	).Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	info := &Info{
		Version:   doc.Raw.Version,
		Encrypted: doc.Raw.Encrypted,
		Repaired:  doc.Raw.Repaired,
		Objects:   doc.Raw.ObjectCount(),
		Pages:     len(doc.Pages),
		Declared:  doc.Declared,
	}

	sizes := map[[2]float64]int{}
	cache := fonts.NewCache(opts.Logger)
	byKey := map[string]*FontInfo{}
	for _, p := range doc.Pages {
		w, h := p.Size()
		sizes[[2]float64{w, h}]++
		seen := map[string]bool{}
		for _, f := range pageFonts(ctx, doc.Raw, p.Resources, cache, opts.Logger) {
			fi, ok := byKey[f.Key]
			if !ok {
				fi = &FontInfo{
					Name:        f.BaseFont,
					Subtype:     f.Subtype,
					Program:     f.Kind.String(),
					Composite:   f.Composite,
					Substituted: f.Substituted,
				}
				if f.Warning != nil {
					fi.Warning = f.Warning.Error()
				}
				byKey[f.Key] = fi
			}
			if !seen[f.Key] {
				seen[f.Key] = true
				fi.Pages++
			}
		}
	}
	for wh, n := range sizes {
		info.Sizes = append(info.Sizes, PageSize{Width: wh[0], Height: wh[1], Count: n})
	}
	sort.Slice(info.Sizes, func(i, j int) bool {
		a, b := info.Sizes[i], info.Sizes[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Width != b.Width {
			return a.Width < b.Width
		}
		return a.Height < b.Height
	})
	for _, fi := range byKey {
		info.Fonts = append(info.Fonts, *fi)
	}
	sort.Slice(info.Fonts, func(i, j int) bool { return info.Fonts[i].Name < info.Fonts[j].Name })
	return info, nil
}

func pageFonts(ctx context.Context, doc *raw.Document, res *raw.DictObj, cache *fonts.Cache, logger observability.Logger) []*fonts.ExtractedFont {
	if res == nil {
		return nil
	}
	obj, err := doc.Lookup(res, "Font")
	if err != nil || obj == nil {
		return nil
	}
	dict, err := doc.Dict(obj)
	if err != nil || dict == nil {
		return nil
	}
	names := dict.Keys()
	sort.Strings(names)
	var out []*fonts.ExtractedFont
	for _, name := range names {
		entry, _ := dict.Get(name)
		var ref raw.ObjectRef
		if r, ok := entry.(raw.RefObj); ok {
			ref = r.R
		}
		fd, err := doc.Dict(entry)
		if err != nil || fd == nil {
			logger.Warn("unreadable font resource", observability.String("name", name), observability.Err(err))
			continue
		}
		f, err := cache.Extract(ctx, doc, ref, fd)
		if f == nil {
			logger.Warn("font not extracted", observability.String("name", name), observability.Err(err))
			continue
		}
		out = append(out, f)
	}
	return out
}
