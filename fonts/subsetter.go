package fonts

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdf2html/observability"
	"github.com/wudi/pdf2html/pdferr"
)

// ContentHash is the identity of a final font program: hex of the first
// 16 bytes of its BLAKE2b-256 digest.
func ContentHash(program []byte) string {
	sum := blake2b.Sum256(program)
	return hex.EncodeToString(sum[:16])
}

// Finalize subsets every embeddable font to the glyphs recorded by the
// Analyzer, gives it a cmap from the recorded text, hashes the result
// and wraps it as WOFF. It runs once all
// pages are interpreted. A font that fails is substituted, never fatal.
func (c *Cache) Finalize(ctx context.Context) error {
	start := time.Now()
	fonts := c.Fonts()
	subset := 0
	for _, f := range fonts {
		if err := ctx.Err(); err != nil {
			return pdferr.New(pdferr.KindTimeout, "finalize fonts", err)
		}
		if !f.Kind.Embeddable() || f.Substituted || f.WOFF != nil {
			continue
		}
		if err := f.finalize(); err != nil {
			f.substitute(err)
			f.Family, f.Generic = substituteFamily(f.BaseFont, 0)
			c.logger.Warn("font substituted",
				observability.String("font", f.BaseFont),
				observability.Err(f.Warning))
			continue
		}
		subset++
	}
	c.logger.Debug("fonts finalized",
		observability.Int("fonts", len(fonts)),
		observability.Int("subset", subset),
		observability.Duration(observability.MetricSubsettingTime, time.Since(start)))
	return nil
}

func (f *ExtractedFont) finalize() error {
	f.mu.Lock()
	used := f.used.clone()
	pairs := make([]glyphText, 0, len(f.usedText))
	for p := range f.usedText {
		pairs = append(pairs, p)
	}
	f.mu.Unlock()
	u := buildUnicodeMap(pairs)

	var program []byte
	var err error
	switch f.Kind {
	case ProgramCFF:
		program = f.openTypeFromCFF(u)
	case ProgramTrueType:
		program, err = SubsetTrueType(f.program, used)
		if err != nil {
			return fmt.Errorf("subset %s: %w", f.BaseFont, err)
		}
		program, err = replaceTable(program, "cmap", u.table())
	default:
		program, err = replaceTable(f.program, "cmap", u.table())
	}
	if err != nil {
		return fmt.Errorf("cmap %s: %w", f.BaseFont, err)
	}
	woff, err := WrapWOFF(program)
	if err != nil {
		return fmt.Errorf("wrap %s: %w", f.BaseFont, err)
	}
	f.mu.Lock()
	f.unicode = u
	f.mu.Unlock()
	f.Hash = ContentHash(program)
	f.Family = "f" + f.Hash
	f.WOFF = woff
	return nil
}
