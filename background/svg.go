package background

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/color"
	"image/png"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/observability"
	"github.com/wudi/pdf2html/pdferr"
)

// gradientStops is the number of samples taken along a shading function
// when it becomes an SVG gradient.
const gradientStops = 16

type svgWriter struct {
	ctx    context.Context
	b      *Builder
	src    imageSource
	defs   bytes.Buffer
	body   bytes.Buffer
	clips  map[coords.Rect]string
	nextID int
}

func (b *Builder) svg(ctx context.Context) ([]byte, error) {
	w := &svgWriter{ctx: ctx, b: b, src: imageSource{doc: b.doc}, clips: map[coords.Rect]string{}}
	for i, ev := range b.events {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, pdferr.New(pdferr.KindTimeout, "background", err)
			}
		}
		switch ev.Kind {
		case contentstream.EventPath:
			w.path(ev)
		case contentstream.EventImage:
			w.image(ev)
		case contentstream.EventShading:
			w.shading(ev)
		}
	}
	var out bytes.Buffer
	wd, ht := num(b.width), num(b.height)
	fmt.Fprintf(&out, `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%s" height="%s" viewBox="0 0 %s %s">`, wd, ht, wd, ht)
	out.WriteByte('\n')
	if w.defs.Len() > 0 {
		out.WriteString("<defs>\n")
		out.Write(w.defs.Bytes())
		out.WriteString("</defs>\n")
	}
	fmt.Fprintf(&out, "<g transform=\"matrix(1 0 0 -1 0 %s)\">\n", ht)
	out.Write(w.body.Bytes())
	out.WriteString("</g>\n</svg>\n")
	return out.Bytes(), nil
}

func (w *svgWriter) id(prefix string) string {
	w.nextID++
	return prefix + strconv.Itoa(w.nextID)
}

// clipAttr returns the clip-path attribute for the state's clip box.
func (w *svgWriter) clipAttr(gs *contentstream.GraphicsState) string {
	if !gs.ClipSet {
		return ""
	}
	r := gs.Clip
	id, ok := w.clips[r]
	if !ok {
		id = w.id("c")
		w.clips[r] = id
		fmt.Fprintf(&w.defs, "<clipPath id=\"%s\"><rect x=\"%s\" y=\"%s\" width=\"%s\" height=\"%s\"/></clipPath>\n",
			id, num(r.LLX), num(r.LLY), num(math.Max(0, r.URX-r.LLX)), num(math.Max(0, r.URY-r.LLY)))
	}
	return ` clip-path="url(#` + id + `)"`
}

func blendAttr(gs *contentstream.GraphicsState) string {
	bm := gs.BlendMode
	if bm == "" || bm == "Normal" || bm == "Compatible" {
		return ""
	}
	return ` style="mix-blend-mode:` + cssBlend(bm) + `"`
}

// cssBlend turns a blend mode name such as ColorDodge into color-dodge.
func cssBlend(name string) string {
	var sb strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (w *svgWriter) path(ev *contentstream.PaintEvent) {
	gs := &ev.State
	var attrs strings.Builder
	if ev.Fill {
		fmt.Fprintf(&attrs, ` fill="%s"`, hexColor(gs.FillColor))
		if gs.FillAlpha < 1 {
			fmt.Fprintf(&attrs, ` fill-opacity="%s"`, num(gs.FillAlpha))
		}
		if ev.EvenOdd {
			attrs.WriteString(` fill-rule="evenodd"`)
		}
	} else {
		attrs.WriteString(` fill="none"`)
	}
	if ev.Stroke {
		scale := strokeScale(gs.CTM)
		fmt.Fprintf(&attrs, ` stroke="%s" stroke-width="%s"`, hexColor(gs.StrokeColor), num(strokeWidth(gs.LineWidth, scale)))
		if gs.StrokeAlpha < 1 {
			fmt.Fprintf(&attrs, ` stroke-opacity="%s"`, num(gs.StrokeAlpha))
		}
		switch gs.LineCap {
		case contentstream.LineCapRound:
			attrs.WriteString(` stroke-linecap="round"`)
		case contentstream.LineCapSquare:
			attrs.WriteString(` stroke-linecap="square"`)
		}
		switch gs.LineJoin {
		case contentstream.LineJoinRound:
			attrs.WriteString(` stroke-linejoin="round"`)
		case contentstream.LineJoinBevel:
			attrs.WriteString(` stroke-linejoin="bevel"`)
		default:
			if gs.MiterLimit > 0 && gs.MiterLimit != 4 {
				fmt.Fprintf(&attrs, ` stroke-miterlimit="%s"`, num(gs.MiterLimit))
			}
		}
		if dash := dashArray(gs.Dash, scale); dash != "" {
			fmt.Fprintf(&attrs, ` stroke-dasharray="%s"`, dash)
			if gs.DashPhase != 0 {
				fmt.Fprintf(&attrs, ` stroke-dashoffset="%s"`, num(gs.DashPhase*scale))
			}
		}
	}
	fmt.Fprintf(&w.body, "<path d=\"%s\"%s%s%s/>\n", pathData(ev.Path), attrs.String(), w.clipAttr(gs), blendAttr(gs))
}

func pathData(p *contentstream.Path) string {
	var sb strings.Builder
	for _, s := range p.Segments {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		switch s.Op {
		case contentstream.SegMoveTo:
			sb.WriteString("M" + num(s.P[0].X) + " " + num(s.P[0].Y))
		case contentstream.SegLineTo:
			sb.WriteString("L" + num(s.P[0].X) + " " + num(s.P[0].Y))
		case contentstream.SegCurveTo:
			sb.WriteString("C" + num(s.P[0].X) + " " + num(s.P[0].Y) + " " +
				num(s.P[1].X) + " " + num(s.P[1].Y) + " " +
				num(s.P[2].X) + " " + num(s.P[2].Y))
		case contentstream.SegClose:
			sb.WriteString("Z")
		}
	}
	return sb.String()
}

// strokeScale is the factor by which the CTM scales line widths.
func strokeScale(m coords.Matrix) float64 {
	return math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
}

// strokeWidth maps a user-space line width to page space. Zero width
// lines become one device pixel wide.
func strokeWidth(lw, scale float64) float64 {
	if w := lw * scale; w > 0 {
		return w
	}
	return 72.0 / DefaultDPI
}

func dashArray(dash []float64, scale float64) string {
	if len(dash) == 0 {
		return ""
	}
	parts := make([]string, 0, len(dash))
	total := 0.0
	for _, d := range dash {
		if d < 0 {
			return ""
		}
		total += d
		parts = append(parts, num(d*scale))
	}
	if total == 0 {
		return ""
	}
	return strings.Join(parts, " ")
}

func (w *svgWriter) image(ev *contentstream.PaintEvent) {
	gs := &ev.State
	img, err := w.src.decode(w.ctx, ev.Image, fillNRGBA(gs))
	if err != nil {
		w.b.logger.Warn("background image skipped", observability.Err(err))
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		w.b.logger.Warn("background image skipped", observability.Err(err))
		return
	}
	m := ev.Matrix
	// the unit square is flipped so that the first image row is at the top
	fmt.Fprintf(&w.body, "<image width=\"1\" height=\"1\" preserveAspectRatio=\"none\" transform=\"matrix(%s %s %s %s %s %s)\"",
		num(m[0]), num(m[1]), num(-m[2]), num(-m[3]), num(m[2]+m[4]), num(m[3]+m[5]))
	if gs.FillAlpha < 1 {
		fmt.Fprintf(&w.body, " opacity=\"%s\"", num(gs.FillAlpha))
	}
	fmt.Fprintf(&w.body, "%s%s xlink:href=\"data:image/png;base64,%s\"/>\n",
		w.clipAttr(gs), blendAttr(gs), base64.StdEncoding.EncodeToString(buf.Bytes()))
}

func (w *svgWriter) shading(ev *contentstream.PaintEvent) {
	gs := &ev.State
	sh := w.src.shading(w.ctx, ev.Shading, nil, gs.CTM)
	r := ev.Bounds
	if r.Empty() {
		return
	}
	fill := ""
	m := gs.CTM
	transform := fmt.Sprintf(` gradientUnits="userSpaceOnUse" gradientTransform="matrix(%s %s %s %s %s %s)"`,
		num(m[0]), num(m[1]), num(m[2]), num(m[3]), num(m[4]), num(m[5]))
	switch {
	case sh.typ == 2 && len(sh.coords) >= 4:
		id := w.id("g")
		fmt.Fprintf(&w.defs, "<linearGradient id=\"%s\" x1=\"%s\" y1=\"%s\" x2=\"%s\" y2=\"%s\"%s>\n",
			id, num(sh.coords[0]), num(sh.coords[1]), num(sh.coords[2]), num(sh.coords[3]), transform)
		w.stops(sh)
		w.defs.WriteString("</linearGradient>\n")
		fill = "url(#" + id + ")"
	case sh.typ == 3 && len(sh.coords) >= 6:
		id := w.id("g")
		fmt.Fprintf(&w.defs, "<radialGradient id=\"%s\" fx=\"%s\" fy=\"%s\" fr=\"%s\" cx=\"%s\" cy=\"%s\" r=\"%s\"%s>\n",
			id, num(sh.coords[0]), num(sh.coords[1]), num(sh.coords[2]),
			num(sh.coords[3]), num(sh.coords[4]), num(sh.coords[5]), transform)
		w.stops(sh)
		w.defs.WriteString("</radialGradient>\n")
		fill = "url(#" + id + ")"
	default:
		cr, cg, cb := sh.color(0.5)
		fill = rgbHex(cr, cg, cb)
	}
	fmt.Fprintf(&w.body, "<rect x=\"%s\" y=\"%s\" width=\"%s\" height=\"%s\" fill=\"%s\"",
		num(r.LLX), num(r.LLY), num(r.URX-r.LLX), num(r.URY-r.LLY), fill)
	if gs.FillAlpha < 1 {
		fmt.Fprintf(&w.body, " fill-opacity=\"%s\"", num(gs.FillAlpha))
	}
	fmt.Fprintf(&w.body, "%s%s/>\n", w.clipAttr(gs), blendAttr(gs))
}

func (w *svgWriter) stops(sh *shading) {
	for i := 0; i <= gradientStops; i++ {
		t := float64(i) / gradientStops
		cr, cg, cb := sh.color(t)
		fmt.Fprintf(&w.defs, "<stop offset=\"%s\" stop-color=\"%s\"/>\n", num(t), rgbHex(cr, cg, cb))
	}
}

func hexColor(c contentstream.Color) string {
	r, g, b := c.RGB()
	return rgbHex(r, g, b)
}

func rgbHex(r, g, b float64) string {
	return fmt.Sprintf("#%02x%02x%02x", to8(r), to8(g), to8(b))
}

func fillNRGBA(gs *contentstream.GraphicsState) color.NRGBA {
	r, g, b := gs.FillColor.RGB()
	return color.NRGBA{R: to8(r), G: to8(g), B: to8(b), A: 0xFF}
}

// num formats a coordinate with at most three decimals.
func num(v float64) string {
	v = math.Round(v*1000) / 1000
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
