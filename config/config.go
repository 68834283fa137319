// Package config resolves conversion settings from pdf2html.yaml,
// PDF2HTML_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wudi/pdf2html/background"
	"github.com/wudi/pdf2html/convert"
	"github.com/wudi/pdf2html/observability"
	"github.com/wudi/pdf2html/recovery"
)

// Keys understood in the config file. Environment variables use the
// upper-cased key with dots replaced by underscores, e.g.
// PDF2HTML_LIMITS_MAX_DECODE_RATIO.
const (
	KeyPages               = "pages"
	KeyDPI                 = "dpi"
	KeyZoom                = "zoom"
	KeyEmbedFonts          = "embed_fonts"
	KeyEmbedImages         = "embed_images"
	KeyEmbedCSS            = "embed_css"
	KeyBackground          = "background"
	KeyComplexityThreshold = "complexity_threshold"
	KeySpaceThreshold      = "space_threshold"
	KeyRecursionLimit      = "recursion_limit"
	KeyTimeout             = "timeout"
	KeyPassword            = "password"
	KeyWorkers             = "workers"
	KeyTitle               = "title"
	KeyStrict              = "strict"

	KeyMaxDecodeRatio      = "limits.max_decode_ratio"
	KeyMaxDecompressedSize = "limits.max_decompressed_size"
	KeyMaxXRefDepth        = "limits.max_xref_depth"
	KeyMaxNesting          = "limits.max_nesting"

	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
)

const (
	// Name is the config file name without extension.
	Name      = "pdf2html"
	EnvPrefix = "PDF2HTML"
)

// New returns a viper instance with defaults and environment binding.
// A non-empty file is read as the config; otherwise pdf2html.yaml is
// looked up in the working directory and ~/.config/pdf2html, and a
// missing file is not an error.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(Name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", Name))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// SetDefaults registers the conversion defaults so every key resolves.
func SetDefaults(v *viper.Viper) {
	d := convert.DefaultOptions()
	v.SetDefault(KeyPages, "")
	v.SetDefault(KeyDPI, d.DPI)
	v.SetDefault(KeyZoom, d.Zoom)
	v.SetDefault(KeyEmbedFonts, d.EmbedFonts)
	v.SetDefault(KeyEmbedImages, d.EmbedImages)
	v.SetDefault(KeyEmbedCSS, d.EmbedCSS)
	v.SetDefault(KeyBackground, d.BackgroundFormat.String())
	v.SetDefault(KeyComplexityThreshold, d.VectorComplexityThreshold)
	v.SetDefault(KeySpaceThreshold, d.SpaceThreshold)
	v.SetDefault(KeyRecursionLimit, d.RecursionLimit)
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyPassword, "")
	v.SetDefault(KeyWorkers, 0)
	v.SetDefault(KeyTitle, "")
	v.SetDefault(KeyStrict, false)
	v.SetDefault(KeyMaxDecodeRatio, d.Limits.MaxDecodeRatio)
	v.SetDefault(KeyMaxDecompressedSize, d.Limits.MaxDecompressedSize)
	v.SetDefault(KeyMaxXRefDepth, d.Limits.MaxXRefDepth)
	v.SetDefault(KeyMaxNesting, d.Limits.MaxNesting)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"pages":                KeyPages,
	"dpi":                  KeyDPI,
	"zoom":                 KeyZoom,
	"embed-fonts":          KeyEmbedFonts,
	"embed-images":         KeyEmbedImages,
	"embed-css":            KeyEmbedCSS,
	"background":           KeyBackground,
	"complexity-threshold": KeyComplexityThreshold,
	"timeout":              KeyTimeout,
	"password":             KeyPassword,
	"workers":              KeyWorkers,
	"title":                KeyTitle,
	"strict":               KeyStrict,
	"log-level":            KeyLogLevel,
	"log-format":           KeyLogFormat,
}

// BindFlags lets the flags of fs that are set override the file and the
// environment. Flags absent from fs are ignored.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load builds validated conversion options. Logger is left unset.
func Load(v *viper.Viper) (convert.Options, error) {
	opts := convert.DefaultOptions()
	var errs []error

	pr, err := convert.ParsePageRange(v.GetString(KeyPages))
	if err != nil {
		errs = append(errs, err)
	}
	opts.PageRange = pr
	format, err := background.ParseFormat(v.GetString(KeyBackground))
	if err != nil {
		errs = append(errs, err)
	}
	opts.BackgroundFormat = format

	opts.DPI = v.GetFloat64(KeyDPI)
	opts.Zoom = v.GetFloat64(KeyZoom)
	opts.EmbedFonts = v.GetBool(KeyEmbedFonts)
	opts.EmbedImages = v.GetBool(KeyEmbedImages)
	opts.EmbedCSS = v.GetBool(KeyEmbedCSS)
	opts.VectorComplexityThreshold = v.GetInt(KeyComplexityThreshold)
	opts.SpaceThreshold = v.GetFloat64(KeySpaceThreshold)
	opts.RecursionLimit = v.GetInt(KeyRecursionLimit)
	opts.Timeout = v.GetDuration(KeyTimeout)
	opts.Password = v.GetString(KeyPassword)
	opts.Title = v.GetString(KeyTitle)
	if n := v.GetInt(KeyWorkers); n > 0 {
		opts.Workers = n
	}
	if v.GetBool(KeyStrict) {
		opts.Strategy = recovery.NewStrictStrategy()
	}

	opts.Limits.MaxDecodeRatio = v.GetFloat64(KeyMaxDecodeRatio)
	opts.Limits.MaxDecompressedSize = v.GetInt64(KeyMaxDecompressedSize)
	opts.Limits.MaxXRefDepth = v.GetInt(KeyMaxXRefDepth)
	opts.Limits.MaxNesting = v.GetInt(KeyMaxNesting)
	if opts.Limits.MaxDecodeRatio < 0 || opts.Limits.MaxDecompressedSize < 0 {
		errs = append(errs, fmt.Errorf("negative decode limits"))
	}

	if err := opts.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return convert.Options{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return opts, nil
}

// Logging returns the logger settings; output defaults to stderr.
func Logging(v *viper.Viper) observability.LogConfig {
	return observability.LogConfig{
		Level:  v.GetString(KeyLogLevel),
		Format: v.GetString(KeyLogFormat),
	}
}
