package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdf2html/background"
	"github.com/wudi/pdf2html/convert"
	"github.com/wudi/pdf2html/recovery"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pdf2html.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	v, err := New("")
	require.NoError(t, err)
	opts, err := Load(v)
	require.NoError(t, err)

	d := convert.DefaultOptions()
	require.Equal(t, d.DPI, opts.DPI)
	require.Equal(t, d.Zoom, opts.Zoom)
	require.True(t, opts.EmbedFonts && opts.EmbedImages && opts.EmbedCSS)
	require.Equal(t, background.FormatAuto, opts.BackgroundFormat)
	require.Equal(t, 2000, opts.VectorComplexityThreshold)
	require.Equal(t, 16, opts.RecursionLimit)
	require.Equal(t, d.Workers, opts.Workers)
	require.Equal(t, d.Limits, opts.Limits)
	require.Equal(t, convert.PageRange{}, opts.PageRange)
	require.Nil(t, opts.Strategy)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
pages: 2-4
dpi: 150
zoom: 1.5
embed_css: false
background: raster
timeout: 30s
workers: 2
strict: true
title: Annual report
limits:
  max_decode_ratio: 50
log:
  level: debug
  format: json
`)
	v, err := New(path)
	require.NoError(t, err)
	opts, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, convert.PageRange{First: 2, Last: 4}, opts.PageRange)
	require.Equal(t, 150.0, opts.DPI)
	require.Equal(t, 1.5, opts.Zoom)
	require.False(t, opts.EmbedCSS)
	require.True(t, opts.EmbedFonts)
	require.Equal(t, background.FormatRaster, opts.BackgroundFormat)
	require.Equal(t, 30*time.Second, opts.Timeout)
	require.Equal(t, 2, opts.Workers)
	require.Equal(t, "Annual report", opts.Title)
	require.Equal(t, 50.0, opts.Limits.MaxDecodeRatio)
	require.IsType(t, &recovery.StrictStrategy{}, opts.Strategy)

	logCfg := Logging(v)
	require.Equal(t, "debug", logCfg.Level)
	require.Equal(t, "json", logCfg.Format)
}

func TestEnvAndFlagsOverride(t *testing.T) {
	path := writeConfig(t, "dpi: 150\nzoom: 2\n")
	t.Setenv("PDF2HTML_DPI", "200")
	t.Setenv("PDF2HTML_LIMITS_MAX_DECODE_RATIO", "25")

	v, err := New(path)
	require.NoError(t, err)
	fs := pflag.NewFlagSet("convert", pflag.ContinueOnError)
	fs.Float64("zoom", 1, "")
	fs.String("pages", "", "")
	fs.Bool("embed-fonts", true, "")
	require.NoError(t, BindFlags(v, fs))
	require.NoError(t, fs.Parse([]string{"--zoom=3", "--pages=5", "--embed-fonts=false"}))

	opts, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 200.0, opts.DPI)
	require.Equal(t, 3.0, opts.Zoom)
	require.Equal(t, convert.PageRange{First: 5, Last: 5}, opts.PageRange)
	require.False(t, opts.EmbedFonts)
	require.Equal(t, 25.0, opts.Limits.MaxDecodeRatio)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"page range": "pages: 5-2\n",
		"background": "background: bitmap\n",
		"dpi":        "dpi: -10\n",
		"ratio":      "limits:\n  max_decode_ratio: -1\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			v, err := New(writeConfig(t, body))
			require.NoError(t, err)
			_, err = Load(v)
			require.Error(t, err)
		})
	}
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
