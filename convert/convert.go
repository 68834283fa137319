// Package convert is the entry point of the conversion core: it parses a
// document, interprets the selected pages in parallel and assembles the
// HTML bundle.
package convert

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdf2html/assembler"
	"github.com/wudi/pdf2html/background"
	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/fonts"
	"github.com/wudi/pdf2html/ir"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/ir/semantic"
	"github.com/wudi/pdf2html/layout"
	"github.com/wudi/pdf2html/observability"
	"github.com/wudi/pdf2html/pdferr"
)

// Convert turns data into an HTML bundle. Whole-document failures (bad
// header, broken catalog or page tree, a wrong password, timeout) return
// an error; a page that fails is reported in its status and the call
// still succeeds.
func Convert(ctx context.Context, data []byte, opts Options) (*assembler.Bundle, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	opts = opts.withDefaults()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	ctx, span := opts.Tracer.StartSpan(ctx, "pdf.convert")
	defer span.Finish()
	start := time.Now()
	c := &converter{opts: opts, logger: opts.Logger, tracer: opts.Tracer}
	bundle, err := c.run(ctx, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, pdferr.ErrTimeout) {
			err = pdferr.New(pdferr.KindTimeout, "convert", ctxErr)
		}
		span.SetError(err)
		c.logger.Error("conversion failed", observability.Err(err))
		return nil, err
	}
	decoded := c.doc.DecodedBytes()
	span.SetTag(observability.MetricPageCount, len(bundle.Pages))
	span.SetTag(observability.MetricDecodedBytes, decoded)
	c.logger.Info("conversion finished",
		observability.Int(observability.MetricPageCount, len(bundle.Pages)),
		observability.Int64(observability.MetricDecodedBytes, decoded),
		observability.Duration(observability.MetricConvertTime, time.Since(start)))
	return bundle, nil
}

type converter struct {
	opts   Options
	logger observability.Logger
	tracer observability.Tracer
	doc    *raw.Document
	fonts  *fonts.Cache
}

func (c *converter) run(ctx context.Context, data []byte) (*assembler.Bundle, error) {
	loaded, err := ir.NewDefault(
		ir.WithLimits(c.opts.Limits),
		ir.WithPassword(c.opts.Password),
		ir.WithRecovery(c.opts.Strategy),
		ir.WithLogger(c.logger),
		ir.WithTracer(c.tracer),
	).Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	first, last, err := c.opts.PageRange.resolve(len(loaded.Pages))
	if err != nil {
		return nil, err
	}
	c.doc = loaded.Raw
	c.fonts = fonts.NewCache(c.logger)
	selected := loaded.Pages[first:last]

	inputs := make([]assembler.PageInput, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, p := range selected {
		g.Go(func() error {
			in, err := c.page(gctx, p)
			if err != nil {
				return err
			}
			inputs[i] = in
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	fctx, fspan := c.tracer.StartSpan(ctx, "pdf.fonts.finalize")
	err = c.fonts.Finalize(fctx)
	if err != nil {
		fspan.SetError(err)
	}
	fspan.Finish()
	if err != nil {
		return nil, err
	}

	actx, aspan := c.tracer.StartSpan(ctx, "pdf.assemble")
	defer aspan.Finish()

	a := assembler.New(assembler.Options{
		EmbedFonts:  c.opts.EmbedFonts,
		EmbedImages: c.opts.EmbedImages,
		EmbedCSS:    c.opts.EmbedCSS,
		Zoom:        c.opts.Zoom,
		Title:       c.opts.Title,
	}, c.logger)
	pages := make([]assembler.Page, len(inputs))
	g, gctx = errgroup.WithContext(actx)
	g.SetLimit(c.opts.Workers)
	for i := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return pdferr.New(pdferr.KindTimeout, "assemble", err)
			}
			pages[i] = a.Page(inputs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		aspan.SetError(err)
		return nil, err
	}
	return a.Bundle(pages, inputs, c.fonts.Fonts()), nil
}

// page interprets one page. Only a timeout is returned as an error;
// every other failure is folded into the page status.
func (c *converter) page(ctx context.Context, p *semantic.Page) (in assembler.PageInput, err error) {
	start := time.Now()
	w, h := p.Size()
	in = assembler.PageInput{Number: p.Index + 1, Width: w, Height: h}
	logger := c.logger.With(observability.Int("page", in.Number))
	ctx, span := c.tracer.StartSpan(ctx, "pdf.page")
	span.SetTag("page", in.Number)
	defer func() {
		span.SetTag("status", in.Status.String())
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	defer func() {
		if r := recover(); r != nil {
			perr := pdferr.Errorf(pdferr.KindInternalInvariantViolation, "page", "panic: %v", r)
			logger.Error("page worker panicked", observability.Err(perr), observability.String("stack", string(debug.Stack())))
			in = assembler.PageInput{Number: in.Number, Width: w, Height: h, Status: assembler.StatusFailed, Diagnostics: []string{perr.Error()}}
			err = nil
		}
	}()

	engine := layout.NewEngine(w, h, layout.WithSpaceThreshold(c.opts.SpaceThreshold), layout.WithLogger(logger))
	bg := background.NewBuilder(c.doc, w, h, background.WithLogger(logger))
	diags := &diagnostics{}
	sink := contentstream.FanOut(engine, bg, fonts.NewAnalyzer(), diags)

	ierr := contentstream.Interpret(ctx, c.doc, p, sink, contentstream.Options{
		RecursionLimit: c.opts.RecursionLimit,
		Fonts:          c.fonts,
		Recovery:       c.opts.Strategy,
		Logger:         logger,
	})
	if ierr != nil {
		if isTimeout(ctx, ierr) {
			return in, pdferr.New(pdferr.KindTimeout, "interpret", ierr)
		}
		logger.Error("page failed", observability.Err(ierr))
		in.Status = assembler.StatusFailed
		in.Diagnostics = append(diags.messages, ierr.Error())
		return in, nil
	}

	in.Runs = engine.Runs()
	in.Diagnostics = diags.messages
	if len(diags.messages) > 0 {
		in.Status = assembler.StatusDegraded
	}
	format := c.opts.BackgroundFormat
	if format == background.FormatAuto && c.opts.VectorComplexityThreshold == 0 {
		format = background.FormatRaster
	}
	layer, berr := bg.Render(ctx, background.RenderOptions{
		Format:    format,
		Threshold: c.opts.VectorComplexityThreshold,
		DPI:       c.opts.DPI,
	})
	switch {
	case berr != nil && isTimeout(ctx, berr):
		return in, berr
	case berr != nil:
		logger.Warn("background dropped", observability.Err(berr))
		in.Status = assembler.StatusDegraded
		in.Diagnostics = append(in.Diagnostics, berr.Error())
	default:
		in.Background = layer
	}
	logger.Debug("page interpreted",
		observability.Int("runs", len(in.Runs)),
		observability.String("status", in.Status.String()),
		observability.Duration(observability.MetricPageTime, time.Since(start)))
	return in, nil
}

func isTimeout(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, pdferr.ErrTimeout)
}

// diagnostics collects the interpreter's recoverable problems as page
// diagnostics.
type diagnostics struct {
	messages []string
}

func (d *diagnostics) Paint(*contentstream.PaintEvent) {}

func (d *diagnostics) Diagnose(diag contentstream.Diagnostic) {
	msg := diag.Kind.String()
	if diag.Operator != "" {
		msg += " at " + diag.Operator
	}
	if diag.Message != "" {
		msg += ": " + diag.Message
	}
	d.messages = append(d.messages, msg)
}
