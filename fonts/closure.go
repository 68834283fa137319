package fonts

import (
	"bytes"
	"fmt"

	"github.com/go-text/typesetting/font/opentype"
	"github.com/go-text/typesetting/font/opentype/tables"
)

// gsubClosure extends seed with every glyph a GSUB lookup can produce
// from it, so substituted forms survive subsetting.
func gsubClosure(program []byte, seed glyphSet) (glyphSet, error) {
	ld, err := opentype.NewLoader(bytes.NewReader(program))
	if err != nil {
		return nil, fmt.Errorf("open font: %w", err)
	}
	out := seed.clone()
	tag := opentype.NewTag('G', 'S', 'U', 'B')
	if !ld.HasTable(tag) {
		return out, nil
	}
	raw, err := ld.RawTable(tag)
	if err != nil {
		return nil, fmt.Errorf("read GSUB: %w", err)
	}
	layout, _, err := tables.ParseLayout(raw)
	if err != nil {
		return nil, fmt.Errorf("parse GSUB: %w", err)
	}
	c := &closer{set: out, lookups: make([][]tables.GSUBLookup, len(layout.LookupList.Lookups))}
	for i, l := range layout.LookupList.Lookups {
		if subs, err := l.AsGSUBLookups(); err == nil {
			c.lookups[i] = subs
		}
	}
	for {
		grown := false
		glyphs := c.set.sorted()
		c.active = make(map[int]bool)
		for i := range c.lookups {
			if c.apply(i, glyphs) {
				grown = true
			}
		}
		if !grown {
			return c.set, nil
		}
	}
}

type closer struct {
	set     glyphSet
	lookups [][]tables.GSUBLookup
	// active guards nested lookup invocation from contextual rules.
	active map[int]bool
}

func (c *closer) apply(index int, glyphs []uint16) bool {
	if index < 0 || index >= len(c.lookups) || c.active[index] {
		return false
	}
	c.active[index] = true
	defer func() { c.active[index] = false }()
	grown := false
	for _, sub := range c.lookups[index] {
		if c.subtable(sub, glyphs) {
			grown = true
		}
	}
	return grown
}

func (c *closer) addGlyphs(ids ...tables.GlyphID) bool {
	grown := false
	for _, id := range ids {
		if c.set.add(uint16(id)) {
			grown = true
		}
	}
	return grown
}

func (c *closer) subtable(sub tables.GSUBLookup, glyphs []uint16) bool {
	grown := false
	cov := sub.Cov()
	for _, gid := range glyphs {
		idx, ok := cov.Index(tables.GlyphID(gid))
		if !ok {
			continue
		}
		switch t := sub.(type) {
		case tables.SingleSubs:
			switch d := t.Data.(type) {
			case tables.SingleSubstData1:
				grown = c.addGlyphs(tables.GlyphID(int(gid)+int(d.DeltaGlyphID))) || grown
			case tables.SingleSubstData2:
				if idx < len(d.SubstituteGlyphIDs) {
					grown = c.addGlyphs(d.SubstituteGlyphIDs[idx]) || grown
				}
			}
		case tables.MultipleSubs:
			if idx < len(t.Sequences) {
				grown = c.addGlyphs(t.Sequences[idx].SubstituteGlyphIDs...) || grown
			}
		case tables.AlternateSubs:
			if idx < len(t.AlternateSets) {
				grown = c.addGlyphs(t.AlternateSets[idx].AlternateGlyphIDs...) || grown
			}
		case tables.LigatureSubs:
			if idx < len(t.LigatureSets) {
				for _, lig := range t.LigatureSets[idx].Ligatures {
					if c.hasAll(lig.ComponentGlyphIDs) {
						grown = c.addGlyphs(lig.LigatureGlyph) || grown
					}
				}
			}
		case tables.ExtensionSubs:
			if inner := unwrapExtension(tables.Extension(t)); inner != nil {
				grown = c.subtable(inner, []uint16{gid}) || grown
			}
		case tables.ContextualSubs:
			grown = c.contextual(t.Data, idx, glyphs) || grown
		case tables.ChainedContextualSubs:
			grown = c.chained(t.Data, idx, glyphs) || grown
		case tables.ReverseChainSingleSubs:
			if idx < len(t.SubstituteGlyphIDs) {
				grown = c.addGlyphs(t.SubstituteGlyphIDs[idx]) || grown
			}
		}
	}
	return grown
}

func (c *closer) hasAll(ids []tables.GlyphID) bool {
	for _, id := range ids {
		if !c.set.has(uint16(id)) {
			return false
		}
	}
	return true
}

// unwrapExtension parses the non-contextual lookup wrapped by an
// extension subtable.
func unwrapExtension(ext tables.Extension) tables.GSUBLookup {
	if int(ext.ExtensionOffset) >= len(ext.RawData) {
		return nil
	}
	data := ext.RawData[ext.ExtensionOffset:]
	switch ext.ExtensionLookupType {
	case 1:
		if s, _, err := tables.ParseSingleSubs(data); err == nil {
			return s
		}
	case 2:
		if s, _, err := tables.ParseMultipleSubs(data); err == nil {
			return s
		}
	case 3:
		if s, _, err := tables.ParseAlternateSubs(data); err == nil {
			return s
		}
	case 4:
		if s, _, err := tables.ParseLigatureSubs(data); err == nil {
			return s
		}
	}
	return nil
}

func (c *closer) contextual(data tables.ContextualSubsITF, idx int, glyphs []uint16) bool {
	switch t := data.(type) {
	case tables.ContextualSubs1:
		sets := tables.SequenceContextFormat1(t).SeqRuleSet
		if idx < len(sets) {
			return c.ruleSets(sets[idx:idx+1], glyphs)
		}
	case tables.ContextualSubs2:
		return c.ruleSets(tables.SequenceContextFormat2(t).ClassSeqRuleSet, glyphs)
	case tables.ContextualSubs3:
		return c.records(tables.SequenceContextFormat3(t).SeqLookupRecords, glyphs)
	}
	return false
}

func (c *closer) chained(data tables.ChainedContextualSubsITF, idx int, glyphs []uint16) bool {
	switch t := data.(type) {
	case tables.ChainedContextualSubs1:
		sets := tables.ChainedSequenceContextFormat1(t).ChainedSeqRuleSet
		if idx < len(sets) {
			return c.chainedRuleSets(sets[idx:idx+1], glyphs)
		}
	case tables.ChainedContextualSubs2:
		return c.chainedRuleSets(tables.ChainedSequenceContextFormat2(t).ChainedClassSeqRuleSet, glyphs)
	case tables.ChainedContextualSubs3:
		return c.records(tables.ChainedSequenceContextFormat3(t).SeqLookupRecords, glyphs)
	}
	return false
}

func (c *closer) ruleSets(sets []tables.SequenceRuleSet, glyphs []uint16) bool {
	grown := false
	for _, set := range sets {
		for _, rule := range set.SeqRule {
			grown = c.records(rule.SeqLookupRecords, glyphs) || grown
		}
	}
	return grown
}

func (c *closer) chainedRuleSets(sets []tables.ChainedSequenceRuleSet, glyphs []uint16) bool {
	grown := false
	for _, set := range sets {
		for _, rule := range set.ChainedSeqRules {
			grown = c.records(rule.SeqLookupRecords, glyphs) || grown
		}
	}
	return grown
}

func (c *closer) records(records []tables.SequenceLookupRecord, glyphs []uint16) bool {
	grown := false
	for _, r := range records {
		grown = c.apply(int(r.LookupListIndex), glyphs) || grown
	}
	return grown
}
