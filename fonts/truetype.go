package fonts

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// glyphSet is a set of glyph ids.
type glyphSet map[uint16]struct{}

func (s glyphSet) add(gid uint16) bool {
	if _, ok := s[gid]; ok {
		return false
	}
	s[gid] = struct{}{}
	return true
}

func (s glyphSet) has(gid uint16) bool {
	_, ok := s[gid]
	return ok
}

func (s glyphSet) sorted() []uint16 {
	out := make([]uint16, 0, len(s))
	for gid := range s {
		out = append(out, gid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s glyphSet) clone() glyphSet {
	c := make(glyphSet, len(s))
	for gid := range s {
		c[gid] = struct{}{}
	}
	return c
}

// Composite glyph component flags.
const (
	argsAreWords    = 0x0001
	haveScale       = 0x0008
	moreComponents  = 0x0020
	haveXYScale     = 0x0040
	haveTwoByTwo    = 0x0080
	compositeHeader = 10
)

// SubsetTrueType keeps the glyph outlines of used (plus .notdef, composite
// components and GSUB alternates) and empties every other glyph. Glyph ids
// are preserved so CID-to-GID mappings stay valid; glyphs past the
// highest kept id are dropped. Fonts without glyf outlines are returned
// unchanged.
func SubsetTrueType(data []byte, used glyphSet) ([]byte, error) {
	f, err := parseSFNT(data)
	if err != nil {
		return nil, err
	}
	for _, tag := range []string{"glyf", "loca", "head", "maxp", "hmtx", "hhea"} {
		if !f.has(tag) {
			return data, nil
		}
	}
	head, _ := f.table("head")
	maxp, _ := f.table("maxp")
	hhea, _ := f.table("hhea")
	if len(head) < 54 || len(maxp) < 6 || len(hhea) < 36 {
		return nil, fmt.Errorf("truncated head, maxp or hhea")
	}
	longLoca := binary.BigEndian.Uint16(head[50:]) == 1
	numGlyphs := int(binary.BigEndian.Uint16(maxp[4:]))

	keep := used.clone()
	keep.add(0)
	if f.has("GSUB") {
		closed, err := gsubClosure(data, keep)
		if err == nil {
			keep = closed
		}
	}
	glyf, _ := f.table("glyf")
	loca, _ := f.table("loca")
	outlines := glyphLocator{glyf: glyf, loca: loca, long: longLoca, count: numGlyphs}
	outlines.addComponents(keep)

	last := 0
	for gid := range keep {
		if int(gid) < numGlyphs && int(gid) > last {
			last = int(gid)
		}
	}
	count := last + 1

	newGlyf, newLoca := outlines.rebuild(keep, count)
	hmtx, _ := f.table("hmtx")
	newHmtx, err := expandHmtx(hmtx, int(binary.BigEndian.Uint16(hhea[34:])), count)
	if err != nil {
		return nil, err
	}

	b := newSFNTBuilder(f.version)
	for _, tag := range []string{"cmap", "name", "OS/2", "post", "cvt ", "fpgm", "prep", "gasp", "GSUB", "GPOS", "GDEF"} {
		if t, err := f.table(tag); err == nil {
			b.set(tag, t)
		}
	}
	newHead := append([]byte(nil), head...)
	binary.BigEndian.PutUint16(newHead[50:], 1) // loca is always written long
	newMaxp := append([]byte(nil), maxp...)
	binary.BigEndian.PutUint16(newMaxp[4:], uint16(count))
	newHhea := append([]byte(nil), hhea...)
	binary.BigEndian.PutUint16(newHhea[34:], uint16(count))

	b.set("head", newHead)
	b.set("maxp", newMaxp)
	b.set("hhea", newHhea)
	b.set("hmtx", newHmtx)
	b.set("glyf", newGlyf)
	b.set("loca", newLoca)
	return b.bytes(), nil
}

type glyphLocator struct {
	glyf  []byte
	loca  []byte
	long  bool
	count int
}

// span returns the glyf byte range of gid, or ok=false for empty or
// out-of-range glyphs.
func (l glyphLocator) span(gid int) (start, end int, ok bool) {
	if gid < 0 || gid >= l.count {
		return 0, 0, false
	}
	if l.long {
		if (gid+2)*4 > len(l.loca) {
			return 0, 0, false
		}
		start = int(binary.BigEndian.Uint32(l.loca[gid*4:]))
		end = int(binary.BigEndian.Uint32(l.loca[gid*4+4:]))
	} else {
		if (gid+2)*2 > len(l.loca) {
			return 0, 0, false
		}
		start = int(binary.BigEndian.Uint16(l.loca[gid*2:])) * 2
		end = int(binary.BigEndian.Uint16(l.loca[gid*2+2:])) * 2
	}
	if start >= end || end > len(l.glyf) {
		return 0, 0, false
	}
	return start, end, true
}

// addComponents closes set over composite glyph references.
func (l glyphLocator) addComponents(set glyphSet) {
	queue := set.sorted()
	for len(queue) > 0 {
		gid := queue[0]
		queue = queue[1:]
		start, end, ok := l.span(int(gid))
		if !ok || end-start < compositeHeader {
			continue
		}
		if int16(binary.BigEndian.Uint16(l.glyf[start:])) >= 0 {
			continue
		}
		p := start + compositeHeader
		for p+4 <= end {
			flags := binary.BigEndian.Uint16(l.glyf[p:])
			component := binary.BigEndian.Uint16(l.glyf[p+2:])
			if set.add(component) {
				queue = append(queue, component)
			}
			p += 4
			if flags&argsAreWords != 0 {
				p += 4
			} else {
				p += 2
			}
			switch {
			case flags&haveScale != 0:
				p += 2
			case flags&haveXYScale != 0:
				p += 4
			case flags&haveTwoByTwo != 0:
				p += 8
			}
			if flags&moreComponents == 0 {
				break
			}
		}
	}
}

func (l glyphLocator) rebuild(keep glyphSet, count int) (glyf, loca []byte) {
	loca = make([]byte, 0, 4*(count+1))
	for gid := 0; gid < count; gid++ {
		loca = binary.BigEndian.AppendUint32(loca, uint32(len(glyf)))
		if !keep.has(uint16(gid)) {
			continue
		}
		if start, end, ok := l.span(gid); ok {
			glyf = append(glyf, l.glyf[start:end]...)
			for len(glyf)%4 != 0 {
				glyf = append(glyf, 0)
			}
		}
	}
	loca = binary.BigEndian.AppendUint32(loca, uint32(len(glyf)))
	return glyf, loca
}

// expandHmtx rewrites hmtx with an explicit metric for each of count
// glyphs.
func expandHmtx(hmtx []byte, numMetrics, count int) ([]byte, error) {
	if numMetrics == 0 || len(hmtx) < numMetrics*4 {
		return nil, fmt.Errorf("hmtx shorter than %d metrics", numMetrics)
	}
	out := make([]byte, 0, count*4)
	lastAdvance := hmtx[(numMetrics-1)*4 : (numMetrics-1)*4+2]
	for gid := 0; gid < count; gid++ {
		if gid < numMetrics {
			out = append(out, hmtx[gid*4:gid*4+4]...)
			continue
		}
		out = append(out, lastAdvance...)
		p := numMetrics*4 + (gid-numMetrics)*2
		if p+2 <= len(hmtx) {
			out = append(out, hmtx[p:p+2]...)
		} else {
			out = append(out, 0, 0)
		}
	}
	return out, nil
}
