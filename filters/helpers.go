package filters

import "github.com/wudi/pdf2html/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream
// dictionary. Parameter entries that are references are resolved with
// resolve when it is non-nil.
func ExtractFilters(dict *raw.DictObj, resolve func(raw.Object) raw.Object) ([]string, []*raw.DictObj) {
	if resolve == nil {
		resolve = func(o raw.Object) raw.Object { return o }
	}
	var names []string
	filterObj, ok := dict.Get("Filter")
	if !ok {
		filterObj, ok = dict.Get("F")
	}
	if !ok {
		return nil, nil
	}
	switch f := resolve(filterObj).(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := resolve(item).(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	params := make([]*raw.DictObj, len(names))
	pObj, ok := dict.Get("DecodeParms")
	if !ok {
		pObj, ok = dict.Get("DP")
	}
	if !ok {
		return names, params
	}
	switch p := resolve(pObj).(type) {
	case *raw.DictObj:
		if len(params) > 0 {
			params[0] = p
		}
	case *raw.ArrayObj:
		for i, item := range p.Items {
			if i >= len(params) {
				break
			}
			if d, ok := resolve(item).(*raw.DictObj); ok {
				params[i] = d
			}
		}
	}
	return names, params
}
