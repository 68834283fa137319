package contentstream

import (
	"context"
	"math"

	"github.com/wudi/pdf2html/ir/raw"
)

// ColorFamily is the colour space family after resolution.
type ColorFamily int

const (
	FamilyGray ColorFamily = iota
	FamilyRGB
	FamilyCMYK
	FamilyLab
	FamilyIndexed
	// FamilyTint covers Separation and DeviceN; components are tints.
	FamilyTint
	FamilyPattern
)

// ColorSpace is a resolved colour space. Indexed spaces carry their base
// and lookup table.
type ColorSpace struct {
	Family ColorFamily
	N      int
	Base   *ColorSpace
	HiVal  int
	Lookup []byte
	// WhitePoint is used by Lab.
	WhitePoint [3]float64
}

var (
	DeviceGray = &ColorSpace{Family: FamilyGray, N: 1}
	DeviceRGB  = &ColorSpace{Family: FamilyRGB, N: 3}
	DeviceCMYK = &ColorSpace{Family: FamilyCMYK, N: 4}
	patternCS  = &ColorSpace{Family: FamilyPattern, N: 0}
)

// Initial returns the initial colour of the space: black, or index 0.
func (cs *ColorSpace) Initial() Color {
	switch cs.Family {
	case FamilyCMYK:
		return Color{Space: cs, Values: []float64{0, 0, 0, 1}}
	case FamilyTint:
		v := make([]float64, cs.N)
		for i := range v {
			v[i] = 1
		}
		return Color{Space: cs, Values: v}
	case FamilyPattern:
		return Color{Space: cs}
	}
	return Color{Space: cs, Values: make([]float64, cs.N)}
}

// Color is a colour value in its space.
type Color struct {
	Space  *ColorSpace
	Values []float64
	// Pattern names the pattern resource for pattern colours.
	Pattern string
}

func black() Color { return Color{Space: DeviceGray, Values: []float64{0}} }

func (c Color) clone() Color {
	c.Values = append([]float64(nil), c.Values...)
	return c
}

// RGB converts the colour to sRGB components in [0, 1]. Pattern colours
// map to mid grey since they have no single colour.
func (c Color) RGB() (r, g, b float64) {
	cs := c.Space
	if cs == nil {
		cs = DeviceGray
	}
	return toRGB(cs, c.Values)
}

func at(v []float64, i int) float64 {
	if i < len(v) {
		return clamp01(v[i])
	}
	return 0
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func toRGB(cs *ColorSpace, v []float64) (r, g, b float64) {
	switch cs.Family {
	case FamilyGray:
		x := at(v, 0)
		return x, x, x
	case FamilyRGB:
		return at(v, 0), at(v, 1), at(v, 2)
	case FamilyCMYK:
		c, m, y, k := at(v, 0), at(v, 1), at(v, 2), at(v, 3)
		return (1 - c) * (1 - k), (1 - m) * (1 - k), (1 - y) * (1 - k)
	case FamilyLab:
		return labToRGB(cs, v)
	case FamilyIndexed:
		if cs.Base == nil || len(v) == 0 {
			return 0, 0, 0
		}
		idx := int(v[0])
		if idx < 0 {
			idx = 0
		}
		if idx > cs.HiVal {
			idx = cs.HiVal
		}
		n := cs.Base.N
		comps := make([]float64, n)
		for i := 0; i < n; i++ {
			if p := idx*n + i; p < len(cs.Lookup) {
				comps[i] = float64(cs.Lookup[p]) / 255
			}
		}
		if cs.Base.Family == FamilyLab {
			// lookup bytes span each component's range
			comps[0] *= 100
			comps[1] = comps[1]*200 - 100
			comps[2] = comps[2]*200 - 100
		}
		return toRGB(cs.Base, comps)
	case FamilyTint:
		// approximate a tint as the matching amount of black ink
		sum := 0.0
		for i := 0; i < len(v); i++ {
			sum += at(v, i)
		}
		if len(v) > 0 {
			sum /= float64(len(v))
		}
		x := 1 - sum
		return x, x, x
	}
	return 0.5, 0.5, 0.5
}

func labToRGB(cs *ColorSpace, v []float64) (float64, float64, float64) {
	l, a, b := 0.0, 0.0, 0.0
	if len(v) == 3 {
		l, a, b = v[0], v[1], v[2]
	}
	wp := cs.WhitePoint
	if wp == [3]float64{} {
		wp = [3]float64{0.9505, 1, 1.089}
	}
	fy := (l + 16) / 116
	fx := fy + a/500
	fz := fy - b/200
	finv := func(t float64) float64 {
		if t > 6.0/29 {
			return t * t * t
		}
		return 3 * (6.0 / 29) * (6.0 / 29) * (t - 4.0/29)
	}
	x, y, z := wp[0]*finv(fx), wp[1]*finv(fy), wp[2]*finv(fz)
	r := 3.2406*x - 1.5372*y - 0.4986*z
	g := -0.9689*x + 1.8758*y + 0.0415*z
	bl := 0.0557*x - 0.2040*y + 1.0570*z
	gamma := func(c float64) float64 {
		if c <= 0.0031308 {
			return clamp01(12.92 * c)
		}
		return clamp01(1.055*math.Pow(c, 1/2.4) - 0.055)
	}
	return gamma(r), gamma(g), gamma(bl)
}

// ResolveColorSpace resolves a colour space operand or resource entry.
// Unknown spaces fall back to DeviceGray with ok set to false.
func ResolveColorSpace(doc *raw.Document, obj raw.Object, resources *raw.DictObj) (*ColorSpace, bool) {
	return resolveColorSpace(doc, obj, resources, 0)
}

func resolveColorSpace(doc *raw.Document, obj raw.Object, resources *raw.DictObj, depth int) (*ColorSpace, bool) {
	if depth > 8 {
		return DeviceGray, false
	}
	obj, err := doc.Resolve(obj)
	if err != nil {
		return DeviceGray, false
	}
	switch v := obj.(type) {
	case raw.NameObj:
		switch v.Val {
		case "DeviceGray", "G", "CalGray":
			return DeviceGray, true
		case "DeviceRGB", "RGB", "CalRGB":
			return DeviceRGB, true
		case "DeviceCMYK", "CMYK":
			return DeviceCMYK, true
		case "Pattern":
			return patternCS, true
		}
		if resources != nil {
			csDict, _ := doc.Dict(mustLookup(doc, resources, "ColorSpace"))
			if entry, ok := csDict.Get(v.Val); ok {
				return resolveColorSpace(doc, entry, nil, depth+1)
			}
		}
		return DeviceGray, false
	case *raw.ArrayObj:
		if v.Len() == 0 {
			return DeviceGray, false
		}
		first, _ := v.Get(0)
		family := doc.Name(first)
		switch family {
		case "DeviceGray", "CalGray", "G":
			return DeviceGray, true
		case "DeviceRGB", "CalRGB", "RGB":
			return DeviceRGB, true
		case "DeviceCMYK", "CMYK":
			return DeviceCMYK, true
		case "Lab":
			cs := &ColorSpace{Family: FamilyLab, N: 3}
			if p, ok := v.Get(1); ok {
				if d, _ := doc.Dict(p); d != nil {
					if wp, ok := doc.Numbers(mustLookup(doc, d, "WhitePoint")); ok && len(wp) == 3 {
						cs.WhitePoint = [3]float64{wp[0], wp[1], wp[2]}
					}
				}
			}
			return cs, true
		case "ICCBased":
			p, _ := v.Get(1)
			st, _ := doc.Stream(p)
			if st != nil {
				if n, ok := doc.Number(mustLookup(doc, st.Dict, "N")); ok {
					switch int(n) {
					case 1:
						return DeviceGray, true
					case 3:
						return DeviceRGB, true
					case 4:
						return DeviceCMYK, true
					}
				}
				if alt, ok := st.Dict.Get("Alternate"); ok {
					return resolveColorSpace(doc, alt, nil, depth+1)
				}
			}
			return DeviceRGB, false
		case "Indexed", "I":
			if v.Len() < 4 {
				return DeviceGray, false
			}
			baseObj, _ := v.Get(1)
			base, ok := resolveColorSpace(doc, baseObj, resources, depth+1)
			hiObj, _ := v.Get(2)
			hi, _ := doc.Number(hiObj)
			lookupObj, _ := v.Get(3)
			return &ColorSpace{Family: FamilyIndexed, N: 1, Base: base, HiVal: int(hi), Lookup: lookupBytes(doc, lookupObj)}, ok
		case "Separation":
			return &ColorSpace{Family: FamilyTint, N: 1}, true
		case "DeviceN":
			names, _ := v.Get(1)
			arr, _ := doc.Array(names)
			n := 1
			if arr != nil && arr.Len() > 0 {
				n = arr.Len()
			}
			return &ColorSpace{Family: FamilyTint, N: n}, true
		case "Pattern":
			cs := &ColorSpace{Family: FamilyPattern}
			if baseObj, ok := v.Get(1); ok {
				cs.Base, _ = resolveColorSpace(doc, baseObj, resources, depth+1)
				cs.N = cs.Base.N
			}
			return cs, true
		}
	}
	return DeviceGray, false
}

func lookupBytes(doc *raw.Document, o raw.Object) []byte {
	o, err := doc.Resolve(o)
	if err != nil {
		return nil
	}
	switch v := o.(type) {
	case raw.StringObj:
		return v.Bytes
	case *raw.StreamObj:
		data, err := doc.DecodeStream(context.Background(), v)
		if err != nil {
			return nil
		}
		return data
	}
	return nil
}

func mustLookup(doc *raw.Document, d *raw.DictObj, key string) raw.Object {
	if d == nil {
		return nil
	}
	o, err := doc.Lookup(d, key)
	if err != nil {
		return nil
	}
	return o
}
