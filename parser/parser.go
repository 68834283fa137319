// Package parser turns the bytes of a PDF file into a raw.Document:
// header validation, cross-reference loading with repair fallback,
// decryption setup and a lazy object loader.
package parser

import (
	"bytes"
	"context"
	"strings"

	"github.com/wudi/pdf2html/filters"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/observability"
	"github.com/wudi/pdf2html/pdferr"
	"github.com/wudi/pdf2html/recovery"
	"github.com/wudi/pdf2html/security"
	"github.com/wudi/pdf2html/xref"
)

// headerWindow is how far into the file the %PDF- marker may appear.
const headerWindow = 1024

type Config struct {
	Limits   security.Limits
	Recovery recovery.Strategy
	Logger   observability.Logger
	Password string
}

func (c Config) withDefaults() Config {
	if c.Limits == (security.Limits{}) {
		c.Limits = security.DefaultLimits()
	}
	c.Logger = observability.OrNop(c.Logger)
	if c.Recovery == nil {
		c.Recovery = recovery.NewLenientStrategy(c.Logger)
	}
	return c
}

// Parse reads data and returns a document whose objects load lazily.
// data must not be modified while the document is in use.
func Parse(ctx context.Context, data []byte, cfg Config) (*raw.Document, error) {
	cfg = cfg.withDefaults()
	version, err := headerVersion(data)
	if err != nil {
		return nil, err
	}
	pipeline := filters.NewDefaultPipeline(cfg.Limits)
	decodeXRef := func(ctx context.Context, s *raw.StreamObj) ([]byte, error) {
		names, params := filters.ExtractFilters(s.Dict, nil)
		out, _, err := pipeline.Decode(ctx, s.Data, names, params)
		return out, err
	}

	table, err := xref.Load(ctx, data, xref.Config{
		MaxXRefDepth: cfg.Limits.MaxXRefDepth,
		Recovery:     cfg.Recovery,
		Decode:       decodeXRef,
	})
	if err == nil && !xref.Validate(data, table) {
		err = pdferr.Errorf(pdferr.KindCorruptStructure, "xref", "offsets do not point at object headers")
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, pdferr.New(pdferr.KindTimeout, "parse", ctx.Err())
		}
		if act := cfg.Recovery.OnError(ctx, pdferr.New(pdferr.KindCorruptStructure, "xref", err), recovery.Location{Component: "xref"}); !act.Continue() {
			return nil, pdferr.New(pdferr.KindCorruptStructure, "xref", err)
		}
		cfg.Logger.Warn("cross-reference table unusable, scanning file", observability.Err(err))
		table, err = xref.Repair(ctx, data)
		if err != nil {
			return nil, err
		}
	}

	loader := &objectLoader{
		data:     data,
		table:    table,
		pipeline: pipeline,
		limits:   cfg.Limits,
		recovery: cfg.Recovery,
		ctx:      context.WithoutCancel(ctx),
	}
	if table.Repaired {
		loader.registerObjectStreams()
	}
	if err := setupSecurity(loader, table.Trailer, cfg.Password); err != nil {
		return nil, err
	}

	doc := raw.NewDocument(version, table.Trailer, loader)
	doc.Encrypted = loader.security != nil
	doc.Repaired = table.Repaired
	catalog, err := doc.Catalog()
	if err != nil {
		return nil, err
	}
	if v := catalog.NameValue("Version"); v > doc.Version {
		doc.Version = v
	}
	cfg.Logger.Debug("parsed document",
		observability.String("version", doc.Version),
		observability.Int(observability.MetricObjectCount, doc.ObjectCount()),
		observability.Bool("repaired", doc.Repaired),
		observability.Bool("encrypted", doc.Encrypted))
	return doc, nil
}

func headerVersion(data []byte) (string, error) {
	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	idx := bytes.Index(window, []byte("%PDF-"))
	if idx < 0 {
		return "", pdferr.Errorf(pdferr.KindInvalidFormat, "parse", "missing %%PDF- header")
	}
	rest := data[idx+5:]
	end := 0
	for end < len(rest) && end < 8 && (rest[end] == '.' || (rest[end] >= '0' && rest[end] <= '9')) {
		end++
	}
	version := strings.TrimSuffix(string(rest[:end]), ".")
	if version == "" || !strings.Contains(version, ".") {
		return "", pdferr.Errorf(pdferr.KindInvalidFormat, "parse", "malformed version %q", rest[:end])
	}
	return version, nil
}

func setupSecurity(l *objectLoader, trailer *raw.DictObj, password string) error {
	encObj, ok := trailer.Get("Encrypt")
	if !ok {
		return nil
	}
	if ref, isRef := encObj.(raw.RefObj); isRef {
		l.encryptRef = ref.R
		obj, err := l.Load(ref.R)
		if err != nil {
			return pdferr.New(pdferr.KindEncryptionRequired, "read /Encrypt", err)
		}
		encObj = obj
	}
	enc, ok := encObj.(*raw.DictObj)
	if !ok {
		if _, isNull := encObj.(raw.NullObj); isNull {
			return nil
		}
		return pdferr.Errorf(pdferr.KindEncryptionRequired, "read /Encrypt", "not a dictionary")
	}
	h, err := security.NewStandardHandler(enc, fileID(trailer), password)
	if err != nil {
		return err
	}
	l.security = h
	return nil
}

func fileID(trailer *raw.DictObj) []byte {
	idObj, ok := trailer.Get("ID")
	if !ok {
		return nil
	}
	arr, ok := idObj.(*raw.ArrayObj)
	if !ok || arr.Len() == 0 {
		return nil
	}
	first, _ := arr.Get(0)
	if s, ok := first.(raw.StringObj); ok {
		return s.Bytes
	}
	return nil
}
