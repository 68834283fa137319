// Package ir chains the document stages: raw objects, then the
// semantic page list.
package ir

import (
	"context"
	"fmt"
	"time"

	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/ir/semantic"
	"github.com/wudi/pdf2html/observability"
	"github.com/wudi/pdf2html/parser"
	"github.com/wudi/pdf2html/recovery"
	"github.com/wudi/pdf2html/security"
)

// Document is a parsed file with its flattened page list.
type Document struct {
	Raw   *raw.Document
	Pages []*semantic.Page
	// Declared is the /Count of the page tree root, when present.
	Declared int
}

type Pipeline struct {
	limits   security.Limits
	password string
	recovery recovery.Strategy
	logger   observability.Logger
	tracer   observability.Tracer
}

type Option func(*Pipeline)

func WithLimits(l security.Limits) Option { return func(p *Pipeline) { p.limits = l } }

func WithPassword(pw string) Option { return func(p *Pipeline) { p.password = pw } }

func WithRecovery(s recovery.Strategy) Option { return func(p *Pipeline) { p.recovery = s } }

func WithLogger(l observability.Logger) Option { return func(p *Pipeline) { p.logger = l } }

func WithTracer(t observability.Tracer) Option { return func(p *Pipeline) { p.tracer = t } }

// NewDefault constructs a pipeline with default limits and lenient
// recovery.
func NewDefault(opts ...Option) *Pipeline {
	p := &Pipeline{limits: security.DefaultLimits()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = observability.OrNop(p.logger)
	p.tracer = observability.OrNopTracer(p.tracer)
	if p.recovery == nil {
		p.recovery = recovery.NewLenientStrategy(p.logger)
	}
	return p
}

// Parse orchestrates Raw -> Semantic. Errors keep their pdferr kind.
func (p *Pipeline) Parse(ctx context.Context, data []byte) (doc *Document, err error) {
	ctx, span := p.tracer.StartSpan(ctx, "pdf.parse")
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()
	span.SetTag("bytes", len(data))
	start := time.Now()
	rawDoc, err := parser.Parse(ctx, data, parser.Config{
		Limits:   p.limits,
		Recovery: p.recovery,
		Logger:   p.logger,
		Password: p.password,
	})
	if err != nil {
		return nil, fmt.Errorf("raw parsing failed: %w", err)
	}

	pages, err := semantic.Pages(ctx, rawDoc, semantic.Config{Recovery: p.recovery, Logger: p.logger})
	if err != nil {
		return nil, fmt.Errorf("semantic building failed: %w", err)
	}

	doc = &Document{Raw: rawDoc, Pages: pages}
	if n, ok := semantic.DeclaredCount(rawDoc); ok {
		doc.Declared = n
		if n != len(pages) {
			p.logger.Warn("page count mismatch",
				observability.Int("declared", n),
				observability.Int("found", len(pages)))
		}
	}
	span.SetTag(observability.MetricPageCount, len(pages))
	p.logger.Debug("document loaded",
		observability.Int(observability.MetricPageCount, len(pages)),
		observability.Int64(observability.MetricDecodedBytes, rawDoc.DecodedBytes()),
		observability.Duration(observability.MetricParseTime, time.Since(start)))
	return doc, nil
}
