package filters

import "github.com/wudi/pdf2html/ir/raw"

// applyPredictor reverses the PNG (10-15) and TIFF (2) predictors.
func applyPredictor(data []byte, params *raw.DictObj, budget int64) ([]byte, error) {
	predictor := intParam(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	if colors < 1 || colors > 32 || columns < 1 || (bpc != 1 && bpc != 2 && bpc != 4 && bpc != 8 && bpc != 16) {
		return nil, errorf("invalid predictor parameters colors=%d bpc=%d columns=%d", colors, bpc, columns)
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	if predictor == 2 {
		return tiffPredict(data, rowLen, bpp, bpc), nil
	}
	if predictor < 10 {
		return nil, errorf("unsupported predictor %d", predictor)
	}
	return pngUnpredict(data, rowLen, bpp, budget)
}

func pngUnpredict(data []byte, rowLen, bpp int, budget int64) ([]byte, error) {
	stride := rowLen + 1
	rows := (len(data) + stride - 1) / stride
	if budget > 0 && int64(rows*rowLen) > budget {
		return nil, bombError(budget)
	}
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for off := 0; off < len(data); off += stride {
		end := off + stride
		if end > len(data) {
			end = len(data)
		}
		filter := data[off]
		for i := range cur {
			cur[i] = 0
		}
		copy(cur, data[off+1:end])
		switch filter {
		case 0:
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = cur[i-bpp]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var a, c byte
				if i >= bpp {
					a = cur[i-bpp]
					c = prev[i-bpp]
				}
				cur[i] += paeth(a, prev[i], c)
			}
		default:
			return nil, errorf("invalid PNG filter type %d", filter)
		}
		out = append(out, cur[:end-off-1]...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// tiffPredict handles predictor 2 for 8-bit components; other depths are
// passed through unchanged.
func tiffPredict(data []byte, rowLen, bpp, bpc int) []byte {
	if bpc != 8 {
		return data
	}
	out := append([]byte(nil), data...)
	for off := 0; off < len(out); off += rowLen {
		end := off + rowLen
		if end > len(out) {
			end = len(out)
		}
		for i := off + bpp; i < end; i++ {
			out[i] += out[i-bpp]
		}
	}
	return out
}
