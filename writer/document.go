package writer

import "github.com/wudi/pdf2html/ir/raw"

// Page describes one page for Document.
type Page struct {
	MediaBox  [4]float64
	CropBox   []float64
	Rotate    int
	Content   string
	Resources *raw.DictObj
}

func rect(v ...float64) *raw.ArrayObj {
	arr := raw.NewArray()
	for _, x := range v {
		arr.Items = append(arr.Items, raw.Real(x))
	}
	return arr
}

// Document adds a catalog and a flat page tree for pages and returns the
// catalog reference to pass to Bytes.
func (w *Writer) Document(pages ...Page) raw.RefObj {
	treeRef := w.Reserve()
	kids := raw.NewArray()
	for _, p := range pages {
		content := w.Add(raw.NewStream(raw.Dict(), []byte(p.Content)))
		d := raw.Dict()
		d.Set("Type", raw.Name("Page"))
		d.Set("Parent", treeRef)
		mb := p.MediaBox
		if mb == ([4]float64{}) {
			mb = [4]float64{0, 0, 612, 792}
		}
		d.Set("MediaBox", rect(mb[:]...))
		if len(p.CropBox) == 4 {
			d.Set("CropBox", rect(p.CropBox...))
		}
		if p.Rotate != 0 {
			d.Set("Rotate", raw.Int(int64(p.Rotate)))
		}
		res := p.Resources
		if res == nil {
			res = raw.Dict()
		}
		d.Set("Resources", res)
		d.Set("Contents", content)
		kids.Items = append(kids.Items, w.Add(d))
	}
	tree := raw.Dict()
	tree.Set("Type", raw.Name("Pages"))
	tree.Set("Kids", kids)
	tree.Set("Count", raw.Int(int64(len(pages))))
	w.Set(treeRef, tree)
	cat := raw.Dict()
	cat.Set("Type", raw.Name("Catalog"))
	cat.Set("Pages", treeRef)
	return w.Add(cat)
}

// Build is a shorthand that renders pages with cfg.
func Build(cfg Config, pages ...Page) ([]byte, error) {
	w := New(cfg)
	root := w.Document(pages...)
	return w.Bytes(root)
}
