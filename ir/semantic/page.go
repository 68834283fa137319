// Package semantic derives the document-level view of a raw.Document:
// the flattened page list with inherited attributes.
package semantic

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/observability"
	"github.com/wudi/pdf2html/pdferr"
	"github.com/wudi/pdf2html/recovery"
)

// maxTreeDepth bounds page tree nesting.
const maxTreeDepth = 64

// Page is one leaf of the page tree with inherited attributes applied.
type Page struct {
	// Index is the zero-based position in document order.
	Index     int
	Ref       raw.ObjectRef
	Dict      *raw.DictObj
	MediaBox  coords.Rect
	CropBox   coords.Rect
	Rotate    int
	Resources *raw.DictObj
}

// Box is the visible region: the crop box clipped to the media box.
func (p *Page) Box() coords.Rect {
	box := p.CropBox.Intersect(p.MediaBox)
	if box.Empty() {
		return p.MediaBox
	}
	return box
}

// Size returns the displayed width and height after rotation.
func (p *Page) Size() (w, h float64) {
	box := p.Box()
	if p.Rotate == 90 || p.Rotate == 270 {
		return box.Height(), box.Width()
	}
	return box.Width(), box.Height()
}

// DisplayMatrix maps user space to a rotated page space whose origin is
// the lower-left corner of the visible box.
func (p *Page) DisplayMatrix() coords.Matrix {
	box := p.Box()
	m := coords.Translate(-box.LLX, -box.LLY)
	w, h := box.Width(), box.Height()
	switch p.Rotate {
	case 90:
		// clockwise quarter turn
		m = m.Multiply(coords.Matrix{0, -1, 1, 0, 0, w})
	case 180:
		m = m.Multiply(coords.Matrix{-1, 0, 0, -1, w, h})
	case 270:
		m = m.Multiply(coords.Matrix{0, 1, -1, 0, h, 0})
	}
	return m
}

// Content returns the page's content streams decoded and concatenated,
// separated by newlines so tokens never merge across stream boundaries.
// A stream that fails to decode is reported through rec; when rec lets
// processing continue the stream is dropped and its error is returned in
// the second result.
func (p *Page) Content(ctx context.Context, doc *raw.Document, rec recovery.Strategy) ([]byte, []error, error) {
	obj, err := doc.Lookup(p.Dict, "Contents")
	if err != nil {
		return nil, nil, err
	}
	var streams []*raw.StreamObj
	var dropped []error
	switch v := obj.(type) {
	case nil, raw.NullObj:
		return nil, nil, nil
	case *raw.StreamObj:
		streams = append(streams, v)
	case *raw.ArrayObj:
		for _, item := range v.Items {
			st, err := doc.Stream(item)
			if err != nil || st == nil {
				if err == nil {
					continue
				}
				if !onError(ctx, rec, err, p).Continue() {
					return nil, nil, err
				}
				dropped = append(dropped, err)
				continue
			}
			streams = append(streams, st)
		}
	default:
		return nil, nil, pdferr.Errorf(pdferr.KindCorruptStructure, "page contents", "unexpected %s", raw.Describe(obj))
	}
	var buf bytes.Buffer
	for _, st := range streams {
		data, err := doc.DecodeStream(ctx, st)
		if err != nil {
			if !onError(ctx, rec, err, p).Continue() {
				return nil, nil, err
			}
			dropped = append(dropped, err)
			continue
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), dropped, nil
}

func onError(ctx context.Context, rec recovery.Strategy, err error, p *Page) recovery.Action {
	if rec == nil {
		return recovery.ActionFail
	}
	return rec.OnError(ctx, err, recovery.Location{
		ObjectNum: p.Ref.Num, ObjectGen: p.Ref.Gen, Page: p.Index + 1, Component: "page",
	})
}

type inherited struct {
	mediaBox  *coords.Rect
	cropBox   *coords.Rect
	rotate    *int
	resources *raw.DictObj
}

// Config tunes the page tree walk.
type Config struct {
	Recovery recovery.Strategy
	Logger   observability.Logger
}

type walker struct {
	ctx     context.Context
	doc     *raw.Document
	cfg     Config
	visited map[raw.ObjectRef]bool
	pages   []*Page
}

// Pages walks the page tree. A missing or non-dictionary tree root is a
// whole-document CorruptStructure error; broken subtrees are reported to
// cfg.Recovery and skipped when it allows.
func Pages(ctx context.Context, doc *raw.Document, cfg Config) ([]*Page, error) {
	cfg.Logger = observability.OrNop(cfg.Logger)
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewLenientStrategy(cfg.Logger)
	}
	cat, err := doc.Catalog()
	if err != nil {
		return nil, err
	}
	rootObj, ok := cat.Get("Pages")
	if !ok {
		return nil, pdferr.Errorf(pdferr.KindCorruptStructure, "page tree", "catalog has no /Pages")
	}
	w := &walker{ctx: ctx, doc: doc, cfg: cfg, visited: make(map[raw.ObjectRef]bool)}
	root, err := doc.Dict(rootObj)
	if err != nil || root == nil {
		if err == nil {
			err = fmt.Errorf("/Pages is null")
		}
		return nil, pdferr.New(pdferr.KindCorruptStructure, "page tree", err)
	}
	if ref, ok := rootObj.(raw.RefObj); ok {
		w.visited[ref.R] = true
	}
	if err := w.node(root, rootRefOf(rootObj), inherited{}, 0); err != nil {
		return nil, err
	}
	cfg.Logger.Debug("page tree walked", observability.Int(observability.MetricPageCount, len(w.pages)))
	return w.pages, nil
}

func rootRefOf(o raw.Object) raw.ObjectRef {
	if ref, ok := o.(raw.RefObj); ok {
		return ref.R
	}
	return raw.ObjectRef{}
}

func (w *walker) fail(err error, ref raw.ObjectRef) error {
	act := w.cfg.Recovery.OnError(w.ctx, err, recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "page tree"})
	if !act.Continue() {
		return err
	}
	w.cfg.Logger.Warn("skipping page tree node", observability.String("ref", ref.String()), observability.Err(err))
	return nil
}

func (w *walker) node(d *raw.DictObj, ref raw.ObjectRef, inh inherited, depth int) error {
	if err := w.ctx.Err(); err != nil {
		return pdferr.New(pdferr.KindTimeout, "page tree", err)
	}
	if depth > maxTreeDepth {
		return w.fail(pdferr.Errorf(pdferr.KindRecursionLimitExceeded, "page tree", "deeper than %d", maxTreeDepth), ref)
	}
	inh = w.inherit(d, inh)

	kidsObj, hasKids := d.Get("Kids")
	isPage := d.NameValue("Type") == "Page" || (d.NameValue("Type") == "" && !hasKids)
	if isPage {
		w.pages = append(w.pages, w.page(d, ref, inh))
		return nil
	}
	kids, err := w.doc.Array(kidsObj)
	if err != nil || kids == nil {
		if err == nil {
			err = fmt.Errorf("pages node without /Kids")
		}
		return w.fail(pdferr.New(pdferr.KindCorruptStructure, "page tree", err), ref)
	}
	for _, kid := range kids.Items {
		kidRef := rootRefOf(kid)
		if _, isRef := kid.(raw.RefObj); isRef {
			if w.visited[kidRef] {
				if err := w.fail(pdferr.Errorf(pdferr.KindCorruptStructure, "page tree", "cycle through %s", kidRef), kidRef); err != nil {
					return err
				}
				continue
			}
			w.visited[kidRef] = true
		}
		kd, err := w.doc.Dict(kid)
		if err != nil || kd == nil {
			if err == nil {
				err = fmt.Errorf("null kid")
			}
			if err := w.fail(pdferr.New(pdferr.KindCorruptStructure, "page tree", err), kidRef); err != nil {
				return err
			}
			continue
		}
		if err := w.node(kd, kidRef, inh, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) inherit(d *raw.DictObj, inh inherited) inherited {
	if r, ok := w.rect(d, "MediaBox"); ok {
		inh.mediaBox = &r
	}
	if r, ok := w.rect(d, "CropBox"); ok {
		inh.cropBox = &r
	}
	if o, err := w.doc.Lookup(d, "Rotate"); err == nil {
		if n, ok := raw.Number(o); ok {
			rot := NormalizeRotation(int(n))
			inh.rotate = &rot
		}
	}
	if o, err := w.doc.Lookup(d, "Resources"); err == nil {
		if res, ok := o.(*raw.DictObj); ok {
			inh.resources = res
		}
	}
	return inh
}

func (w *walker) rect(d *raw.DictObj, key string) (coords.Rect, bool) {
	o, ok := d.Get(key)
	if !ok {
		return coords.Rect{}, false
	}
	v, ok := w.doc.Numbers(o)
	if !ok {
		return coords.Rect{}, false
	}
	r, ok := coords.RectFromSlice(v)
	if !ok || r.Empty() {
		return coords.Rect{}, false
	}
	return r, true
}

func (w *walker) page(d *raw.DictObj, ref raw.ObjectRef, inh inherited) *Page {
	p := &Page{Index: len(w.pages), Ref: ref, Dict: d}
	// US Letter when no ancestor defines a media box
	p.MediaBox = coords.Rect{URX: 612, URY: 792}
	if inh.mediaBox != nil {
		p.MediaBox = *inh.mediaBox
	}
	p.CropBox = p.MediaBox
	if inh.cropBox != nil {
		p.CropBox = *inh.cropBox
	}
	if inh.rotate != nil {
		p.Rotate = *inh.rotate
	}
	p.Resources = inh.resources
	if p.Resources == nil {
		p.Resources = raw.Dict()
	}
	return p
}

// NormalizeRotation maps any multiple of 90 into 0, 90, 180 or 270.
// Other values are rounded to the nearest quarter turn.
func NormalizeRotation(deg int) int {
	r := deg % 360
	if r < 0 {
		r += 360
	}
	return ((r + 45) / 90 * 90) % 360
}

// DeclaredCount returns the root node's /Count entry, which may disagree
// with the number of leaves in a damaged file.
func DeclaredCount(doc *raw.Document) (int, bool) {
	cat, err := doc.Catalog()
	if err != nil {
		return 0, false
	}
	o, err := doc.Lookup(cat, "Pages")
	if err != nil {
		return 0, false
	}
	root, err := doc.Dict(o)
	if err != nil || root == nil {
		return 0, false
	}
	c, err := doc.Lookup(root, "Count")
	if err != nil {
		return 0, false
	}
	n, ok := raw.Number(c)
	return int(n), ok
}
