// Package background renders the non-text paint of a page into a single
// layer that sits beneath the positioned HTML text: an SVG document when
// the page is simple enough to describe faithfully in vectors, a PNG
// otherwise.
package background

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/observability"
	"github.com/wudi/pdf2html/pdferr"
)

// Kind is the representation chosen for a page background.
type Kind int

const (
	KindNone Kind = iota
	KindVector
	KindRaster
)

func (k Kind) String() string {
	switch k {
	case KindVector:
		return "vector"
	case KindRaster:
		return "raster"
	}
	return "none"
}

// Format is the caller's background preference.
type Format int

const (
	FormatAuto Format = iota
	FormatVector
	FormatRaster
)

func (f Format) String() string {
	switch f {
	case FormatVector:
		return "vector"
	case FormatRaster:
		return "raster"
	}
	return "auto"
}

// ParseFormat accepts "auto", "vector" or "raster".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "vector", "svg":
		return FormatVector, nil
	case "raster", "png":
		return FormatRaster, nil
	}
	return FormatAuto, fmt.Errorf("unknown background format %q", s)
}

const (
	DefaultThreshold = 2000
	DefaultDPI       = 96
	// rasterWeight is the score charged per embedded image.
	rasterWeight = 50
)

// Layer is a rendered page background.
type Layer struct {
	Kind   Kind
	Score  int
	Reason string
	Data   []byte
	// Width and Height are pixels for raster layers and points for
	// vector layers.
	Width, Height int
	Hash          string
}

func (l *Layer) MediaType() string {
	if l.Kind == KindRaster {
		return "image/png"
	}
	return "image/svg+xml"
}

func (l *Layer) Ext() string {
	if l.Kind == KindRaster {
		return ".png"
	}
	return ".svg"
}

// Name is the artefact file name, derived from the content hash.
func (l *Layer) Name() string { return "bg" + l.Hash + l.Ext() }

func contentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// Builder collects the non-text paint events of one page. It is a
// contentstream.Sink and is not safe for concurrent use.
type Builder struct {
	doc           *raw.Document
	width, height float64
	logger        observability.Logger

	events  []*contentstream.PaintEvent
	paths   int
	points  int
	rasters int
	// lossy names the first construct SVG cannot express faithfully.
	lossy string
}

type Option func(*Builder)

func WithLogger(l observability.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder returns a builder for a page of the given size in points.
func NewBuilder(doc *raw.Document, width, height float64, opts ...Option) *Builder {
	b := &Builder{doc: doc, width: width, height: height}
	for _, o := range opts {
		o(b)
	}
	b.logger = observability.OrNop(b.logger)
	return b
}

func (b *Builder) Paint(ev *contentstream.PaintEvent) {
	switch ev.Kind {
	case contentstream.EventPath:
		if ev.Path.Empty() || (!ev.Fill && !ev.Stroke) {
			return
		}
		b.paths += len(ev.Path.Segments)
		b.points += ev.Path.ControlPoints()
	case contentstream.EventImage:
		if ev.Image == nil {
			return
		}
		b.rasters++
	case contentstream.EventShading:
		if ev.Shading == nil {
			return
		}
	default:
		return
	}
	if b.lossy == "" {
		b.lossy = lossyReason(&ev.State)
	}
	b.events = append(b.events, ev)
}

func (b *Builder) Diagnose(contentstream.Diagnostic) {}

func lossyReason(gs *contentstream.GraphicsState) string {
	if gs.SoftMask {
		return "soft mask"
	}
	if bm := gs.BlendMode; bm != "" && bm != "Normal" && bm != "Compatible" {
		return "blend mode " + bm
	}
	return ""
}

// Score is path commands plus control points plus a fixed weight per
// embedded raster.
func (b *Builder) Score() int { return b.paths + b.points + rasterWeight*b.rasters }

// Empty reports whether nothing was painted.
func (b *Builder) Empty() bool { return len(b.events) == 0 }

// Decide picks the layer kind and the reason for it.
func (b *Builder) Decide(pref Format, threshold int) (Kind, string) {
	if b.Empty() {
		return KindNone, "nothing painted"
	}
	switch pref {
	case FormatVector:
		return KindVector, "forced vector"
	case FormatRaster:
		return KindRaster, "forced raster"
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if b.lossy != "" {
		return KindRaster, b.lossy
	}
	if score := b.Score(); score >= threshold {
		return KindRaster, fmt.Sprintf("complexity %d >= %d", score, threshold)
	}
	return KindVector, fmt.Sprintf("complexity %d < %d", b.Score(), threshold)
}

// RenderOptions controls layer rendering.
type RenderOptions struct {
	Format    Format
	Threshold int
	DPI       float64
}

// Render decides the layer kind and renders it. It returns nil for pages
// with nothing painted.
func (b *Builder) Render(ctx context.Context, opts RenderOptions) (*Layer, error) {
	kind, reason := b.Decide(opts.Format, opts.Threshold)
	if kind == KindNone {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, pdferr.New(pdferr.KindTimeout, "background", err)
	}
	start := time.Now()
	layer := &Layer{Kind: kind, Score: b.Score(), Reason: reason}
	var err error
	switch kind {
	case KindVector:
		layer.Data, err = b.svg(ctx)
		layer.Width, layer.Height = int(b.width+0.5), int(b.height+0.5)
	case KindRaster:
		dpi := opts.DPI
		if dpi <= 0 {
			dpi = DefaultDPI
		}
		layer.Data, layer.Width, layer.Height, err = b.raster(ctx, dpi)
	}
	if err != nil {
		return nil, err
	}
	layer.Hash = contentHash(layer.Data)
	b.logger.Debug("background rendered",
		observability.String("kind", kind.String()),
		observability.String("reason", reason),
		observability.Int("score", layer.Score),
		observability.Int("bytes", len(layer.Data)),
		observability.Duration(observability.MetricBackgroundTime, time.Since(start)),
	)
	return layer, nil
}
