// Package contentstream interprets page content streams. It tracks the
// graphics state through q/Q, builds paths and text placements, and emits
// a PaintEvent with a state snapshot for every painting operator.
package contentstream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/ir/semantic"
	"github.com/wudi/pdf2html/observability"
	"github.com/wudi/pdf2html/pdferr"
	"github.com/wudi/pdf2html/recovery"
	"github.com/wudi/pdf2html/scanner"
)

// DefaultRecursionLimit bounds form XObject and glyph procedure nesting.
const DefaultRecursionLimit = 16

// maxOperands guards against runaway operand stacks in garbage streams.
const maxOperands = 1 << 12

type Options struct {
	RecursionLimit int
	Fonts          FontSource
	Recovery       recovery.Strategy
	Logger         observability.Logger
}

func (o Options) withDefaults() Options {
	if o.RecursionLimit <= 0 {
		o.RecursionLimit = DefaultRecursionLimit
	}
	o.Logger = observability.OrNop(o.Logger)
	if o.Recovery == nil {
		o.Recovery = recovery.NewLenientStrategy(o.Logger)
	}
	return o
}

// interpreter carries what is shared by a page and every form it draws.
type interpreter struct {
	ctx   context.Context
	doc   *raw.Document
	sink  Sink
	opts  Options
	page  coords.Rect
	seq   int
	fonts map[any]Font
	// active holds the forms currently being drawn, for cycle detection.
	active map[raw.ObjectRef]bool
}

// Interpret runs the page's content streams, sending events to sink. The
// initial CTM is the page's display matrix, so events are in rotated page
// space with the origin at the visible box's lower-left corner.
func Interpret(ctx context.Context, doc *raw.Document, page *semantic.Page, sink Sink, opts Options) error {
	opts = opts.withDefaults()
	content, dropped, err := page.Content(ctx, doc, opts.Recovery)
	if err != nil {
		return err
	}
	ctm := page.DisplayMatrix()
	w, h := page.Size()
	it := newInterpreter(ctx, doc, sink, opts, coords.Rect{URX: w, URY: h})
	for _, err := range dropped {
		sink.Diagnose(Diagnostic{Kind: pdferr.KindOf(err), Message: "content stream dropped: " + err.Error()})
	}
	return it.run(content, page.Resources, NewGraphicsState(ctm), 0)
}

// Run interprets content with explicit resources and initial state.
// bounds is the page area used for shadings without a clip.
func Run(ctx context.Context, doc *raw.Document, content []byte, resources *raw.DictObj, base GraphicsState, bounds coords.Rect, sink Sink, opts Options) error {
	opts = opts.withDefaults()
	it := newInterpreter(ctx, doc, sink, opts, bounds)
	return it.run(content, resources, base, 0)
}

func newInterpreter(ctx context.Context, doc *raw.Document, sink Sink, opts Options, page coords.Rect) *interpreter {
	return &interpreter{
		ctx:    ctx,
		doc:    doc,
		sink:   sink,
		opts:   opts,
		page:   page,
		fonts:  make(map[any]Font),
		active: make(map[raw.ObjectRef]bool),
	}
}

// frame is one content stream execution with its own state stack.
type frame struct {
	it        *interpreter
	resources *raw.DictObj
	states    *stateStack
	depth     int
	pos       int64

	path       Path
	current    coords.Point
	start      coords.Point
	hasCurrent bool
	clip       int // 0 none, 1 nonzero, 2 even-odd

	tm, tlm coords.Matrix
	compat  int
	marked  int
}

const (
	clipNone = iota
	clipNonZero
	clipEvenOdd
)

func (it *interpreter) run(content []byte, resources *raw.DictObj, base GraphicsState, depth int) error {
	f := &frame{
		it:        it,
		resources: resources,
		states:    newStateStack(base),
		depth:     depth,
		tm:        coords.Identity(),
		tlm:       coords.Identity(),
	}
	s := scanner.New(content, scanner.Config{ContentStream: true, Recovery: it.opts.Recovery, Context: it.ctx})
	operands := make([]raw.Object, 0, 8)
	for {
		if err := it.ctx.Err(); err != nil {
			return pdferr.New(pdferr.KindTimeout, "interpret", err)
		}
		tok, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			f.diag(pdferr.KindCorruptStructure, "", err.Error())
			if pdferr.KindOf(err) == pdferr.KindTimeout {
				return err
			}
			break
		}
		f.pos = tok.Pos
		switch tok.Type {
		case scanner.TokenKeyword:
			op := tok.Keyword()
			if op == "BI" {
				if err := f.inlineImage(s); err != nil {
					f.diag(pdferr.KindCorruptStructure, "BI", err.Error())
				}
				operands = operands[:0]
				continue
			}
			if err := f.exec(op, operands); err != nil {
				if k := pdferr.KindOf(err); k == pdferr.KindTimeout {
					return err
				}
			}
			operands = operands[:0]
			continue
		case scanner.TokenArrayEnd, scanner.TokenDictEnd:
			f.diag(pdferr.KindCorruptStructure, "", fmt.Sprintf("stray %s", tok.Type))
			continue
		}
		obj, err := s.ObjectFrom(tok)
		if err != nil {
			if errors.Is(err, scanner.ErrUnexpectedKeyword) {
				continue
			}
			f.diag(pdferr.KindCorruptStructure, "", err.Error())
			operands = operands[:0]
			continue
		}
		if len(operands) < maxOperands {
			operands = append(operands, obj)
		}
	}
	if f.states.depth() > 0 {
		it.opts.Logger.Debug("unbalanced q at end of stream", observability.Int("open", f.states.depth()))
	}
	return nil
}

func (f *frame) gs() *GraphicsState { return f.states.top() }

func (f *frame) diag(kind pdferr.Kind, op, msg string) {
	d := Diagnostic{Kind: kind, Operator: op, Message: msg, Offset: f.pos}
	f.it.sink.Diagnose(d)
	f.it.opts.Logger.Debug("content stream diagnostic",
		observability.String("kind", kind.String()),
		observability.String("operator", op),
		observability.String("message", msg),
		observability.Int64("offset", f.pos))
}

func (f *frame) emit(ev *PaintEvent) {
	ev.Seq = f.it.seq
	ev.Depth = f.depth
	f.it.seq++
	f.it.sink.Paint(ev)
}

// exec dispatches one operator. Unknown operators and operators short of
// operands are skipped with their operands; surplus operands are dropped
// from the bottom of the stack.
func (f *frame) exec(op string, args []raw.Object) error {
	spec, ok := operators[op]
	if !ok {
		if f.compat == 0 {
			f.diag(pdferr.KindCorruptStructure, op, "unknown operator")
		}
		return nil
	}
	if spec.arity >= 0 && len(args) != spec.arity {
		f.diag(pdferr.KindCorruptStructure, op, fmt.Sprintf("expected %d operands, got %d", spec.arity, len(args)))
		if len(args) < spec.arity {
			return nil
		}
		args = args[len(args)-spec.arity:]
	}
	if err := spec.fn(f, args); err != nil {
		kind := pdferr.KindOf(err)
		if kind == pdferr.KindUnknown {
			kind = pdferr.KindCorruptStructure
		}
		f.diag(kind, op, err.Error())
		return err
	}
	return nil
}

var errOperandType = errors.New("operand of wrong type")

func numbers(args []raw.Object) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, ok := raw.Number(a)
		if !ok {
			return nil, errOperandType
		}
		out[i] = v
	}
	return out, nil
}

func nameArg(o raw.Object) (string, error) {
	n, ok := o.(raw.NameObj)
	if !ok {
		return "", errOperandType
	}
	return n.Val, nil
}

// resource looks up name in the category sub-dictionary of the current
// resources.
func (f *frame) resource(category, name string) (raw.Object, bool) {
	doc := f.it.doc
	catDict, err := doc.Dict(mustLookup(doc, f.resources, category))
	if err != nil || catDict == nil {
		return nil, false
	}
	return catDict.Get(name)
}
