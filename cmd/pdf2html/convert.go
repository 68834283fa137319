package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wudi/pdf2html/assembler"
	"github.com/wudi/pdf2html/config"
	"github.com/wudi/pdf2html/convert"
	"github.com/wudi/pdf2html/observability"
)

const (
	indexName    = "index.html"
	manifestName = "manifest.yaml"
)

// manifest records what a conversion wrote.
type manifest struct {
	Source      string         `yaml:"source"`
	Pages       []manifestPage `yaml:"pages"`
	Fonts       []manifestFont `yaml:"fonts,omitempty"`
	Backgrounds []string       `yaml:"backgrounds,omitempty"`
	Files       []string       `yaml:"files"`
}

type manifestPage struct {
	Number      int              `yaml:"number"`
	Width       float64          `yaml:"width"`
	Height      float64          `yaml:"height"`
	Status      assembler.Status `yaml:"status"`
	Background  string           `yaml:"background,omitempty"`
	Diagnostics []string         `yaml:"diagnostics,omitempty"`
}

type manifestFont struct {
	Family string `yaml:"family"`
	Hash   string `yaml:"hash"`
	Kind   string `yaml:"kind"`
	File   string `yaml:"file,omitempty"`
}

func newConvertCmd(a *app) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "convert <in.pdf>",
		Short: "Convert a PDF file to an HTML bundle",
		Long: `Convert writes index.html to the output directory together with the
stylesheet, fonts and backgrounds that are not embedded, and a
manifest.yaml listing every page with its conversion status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(a.v)
			if err != nil {
				return err
			}
			opts.Logger = a.logger
			if opts.Title == "" {
				opts.Title = titleOf(args[0])
			}
			return runConvert(cmd, args[0], outDir, opts, a.logger)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&outDir, "output", "o", "out", "output directory")
	f.String("pages", "", `pages to convert: "N", "N-M" or "N-"`)
	f.Float64("dpi", 96, "resolution of raster backgrounds")
	f.Float64("zoom", 1, "scale factor applied to the output")
	f.Bool("embed-fonts", true, "inline fonts as data URLs")
	f.Bool("embed-images", true, "inline backgrounds as data URLs")
	f.Bool("embed-css", true, "inline the stylesheet")
	f.String("background", "auto", "background format: auto, vector or raster")
	f.Int("complexity-threshold", 2000, "vector complexity above which backgrounds are rasterized")
	f.Duration("timeout", 0, "abort the conversion after this long (0 disables)")
	f.String("password", "", "password of an encrypted document")
	f.Int("workers", 0, "pages interpreted in parallel (0 uses GOMAXPROCS)")
	f.String("title", "", "document title (default: the input file name)")
	f.Bool("strict", false, "fail on the first recoverable error")
	return cmd
}

func titleOf(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func runConvert(cmd *cobra.Command, in, outDir string, opts convert.Options, logger observability.Logger) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	bundle, err := convert.Convert(cmd.Context(), data, opts)
	if err != nil {
		return fmt.Errorf("convert %s: %w", in, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	m := manifest{Source: filepath.Base(in)}
	write := func(name string, data []byte) error {
		if err := os.WriteFile(filepath.Join(outDir, name), data, 0o644); err != nil {
			return err
		}
		m.Files = append(m.Files, name)
		return nil
	}
	if err := write(indexName, []byte(bundle.HTML())); err != nil {
		return err
	}
	for _, art := range bundle.Artefacts() {
		if err := write(art.Name, art.Data); err != nil {
			return err
		}
	}

	failed := 0
	for _, p := range bundle.Pages {
		if p.Status == assembler.StatusFailed {
			failed++
		}
		m.Pages = append(m.Pages, manifestPage{
			Number:      p.Number,
			Width:       p.Width,
			Height:      p.Height,
			Status:      p.Status,
			Background:  p.Background,
			Diagnostics: p.Diagnostics,
		})
	}
	for _, f := range bundle.Fonts {
		mf := manifestFont{Family: f.Family, Hash: f.Hash, Kind: f.Kind}
		if !opts.EmbedFonts {
			mf.File = f.Name
		}
		m.Fonts = append(m.Fonts, mf)
	}
	for _, bg := range bundle.Backgrounds {
		m.Backgrounds = append(m.Backgrounds, bg.Name)
	}
	m.Files = append(m.Files, manifestName)
	out, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, manifestName), out, 0o644); err != nil {
		return err
	}

	logger.Info("bundle written",
		observability.String("dir", outDir),
		observability.Int(observability.MetricPageCount, len(bundle.Pages)),
		observability.Int("failed", failed))
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages written to %s\n", in, len(bundle.Pages), outDir)
	return nil
}
