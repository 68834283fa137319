package convert

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/wudi/pdf2html/background"
	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/layout"
	"github.com/wudi/pdf2html/observability"
	"github.com/wudi/pdf2html/recovery"
	"github.com/wudi/pdf2html/security"
)

// PageRange selects pages by 1-based inclusive numbers. The zero value
// selects every page; Last == 0 runs to the end of the document.
type PageRange struct {
	First int
	Last  int
}

// ErrPageRange is returned when the range selects no page of the
// document.
var ErrPageRange = errors.New("page range selects no pages")

func (r PageRange) String() string {
	switch {
	case r.First == 0 && r.Last == 0:
		return "all"
	case r.Last == 0:
		return fmt.Sprintf("%d-", r.First)
	}
	return fmt.Sprintf("%d-%d", r.First, r.Last)
}

// ParsePageRange reads "N", "N-M", "N-" or "" (every page).
func ParsePageRange(s string) (PageRange, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return PageRange{}, nil
	}
	lo, hi, ranged := strings.Cut(s, "-")
	first, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || first < 1 {
		return PageRange{}, fmt.Errorf("bad page range %q", s)
	}
	if !ranged {
		return PageRange{First: first, Last: first}, nil
	}
	if hi = strings.TrimSpace(hi); hi == "" {
		return PageRange{First: first}, nil
	}
	last, err := strconv.Atoi(hi)
	if err != nil || last < first {
		return PageRange{}, fmt.Errorf("bad page range %q", s)
	}
	return PageRange{First: first, Last: last}, nil
}

// resolve clamps the range to a document of n pages and returns 0-based
// start and end (exclusive) indices.
func (r PageRange) resolve(n int) (int, int, error) {
	first, last := r.First, r.Last
	if first <= 0 {
		first = 1
	}
	if last <= 0 || last > n {
		last = n
	}
	if first > last {
		return 0, 0, fmt.Errorf("%w: %s of %d", ErrPageRange, r, n)
	}
	return first - 1, last, nil
}

// Options configures a conversion.
type Options struct {
	PageRange PageRange
	// DPI is the resolution of raster backgrounds.
	DPI  float64
	Zoom float64

	EmbedFonts  bool
	EmbedImages bool
	EmbedCSS    bool

	BackgroundFormat background.Format
	// VectorComplexityThreshold is the background score from which an
	// automatic background is rasterized. Zero rasterizes every painted
	// background; DefaultOptions sets background.DefaultThreshold.
	VectorComplexityThreshold int
	// SpaceThreshold is the gap, in font sizes, that separates words.
	SpaceThreshold float64
	RecursionLimit int

	// Timeout bounds the whole conversion; zero means none.
	Timeout  time.Duration
	Password string
	// Workers bounds the pages interpreted in parallel.
	Workers int

	Limits   security.Limits
	Logger   observability.Logger
	Tracer   observability.Tracer
	Strategy recovery.Strategy
	Title    string
}

func DefaultOptions() Options {
	return Options{
		DPI:                       background.DefaultDPI,
		Zoom:                      1,
		EmbedFonts:                true,
		EmbedImages:               true,
		EmbedCSS:                  true,
		BackgroundFormat:          background.FormatAuto,
		VectorComplexityThreshold: background.DefaultThreshold,
		SpaceThreshold:            layout.DefaultSpaceThreshold,
		RecursionLimit:            contentstream.DefaultRecursionLimit,
		Workers:                   runtime.GOMAXPROCS(0),
		Limits:                    security.DefaultLimits(),
	}
}

// Option adjusts Options.
type Option func(*Options)

// NewOptions applies opts to DefaultOptions.
func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func WithPageRange(first, last int) Option {
	return func(o *Options) { o.PageRange = PageRange{First: first, Last: last} }
}

func WithDPI(dpi float64) Option { return func(o *Options) { o.DPI = dpi } }

func WithZoom(zoom float64) Option { return func(o *Options) { o.Zoom = zoom } }

func WithEmbedFonts(v bool) Option { return func(o *Options) { o.EmbedFonts = v } }

func WithEmbedImages(v bool) Option { return func(o *Options) { o.EmbedImages = v } }

func WithEmbedCSS(v bool) Option { return func(o *Options) { o.EmbedCSS = v } }

func WithBackgroundFormat(f background.Format) Option {
	return func(o *Options) { o.BackgroundFormat = f }
}

func WithComplexityThreshold(n int) Option {
	return func(o *Options) { o.VectorComplexityThreshold = n }
}

func WithRecursionLimit(n int) Option { return func(o *Options) { o.RecursionLimit = n } }

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }

func WithPassword(pw string) Option { return func(o *Options) { o.Password = pw } }

func WithWorkers(n int) Option { return func(o *Options) { o.Workers = n } }

func WithLogger(l observability.Logger) Option { return func(o *Options) { o.Logger = l } }

func WithTracer(t observability.Tracer) Option { return func(o *Options) { o.Tracer = t } }

func WithStrategy(s recovery.Strategy) Option { return func(o *Options) { o.Strategy = s } }

// Validate rejects options that cannot produce output.
func (o Options) Validate() error {
	var errs []error
	if o.DPI < 0 || o.DPI > 2400 {
		errs = append(errs, fmt.Errorf("dpi %v outside 0-2400", o.DPI))
	}
	if o.Zoom < 0 || o.Zoom > 64 {
		errs = append(errs, fmt.Errorf("zoom %v outside 0-64", o.Zoom))
	}
	if o.PageRange.First < 0 || o.PageRange.Last < 0 {
		errs = append(errs, fmt.Errorf("negative page range %s", o.PageRange))
	}
	if o.PageRange.Last > 0 && o.PageRange.First > o.PageRange.Last {
		errs = append(errs, fmt.Errorf("page range %s is reversed", o.PageRange))
	}
	if o.Timeout < 0 {
		errs = append(errs, fmt.Errorf("negative timeout %s", o.Timeout))
	}
	if o.VectorComplexityThreshold < 0 {
		errs = append(errs, fmt.Errorf("negative complexity threshold %d", o.VectorComplexityThreshold))
	}
	return errors.Join(errs...)
}

// withDefaults fills zero values left by callers that build Options
// without DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DPI == 0 {
		o.DPI = d.DPI
	}
	if o.Zoom == 0 {
		o.Zoom = d.Zoom
	}
	if o.SpaceThreshold <= 0 {
		o.SpaceThreshold = d.SpaceThreshold
	}
	if o.RecursionLimit <= 0 {
		o.RecursionLimit = d.RecursionLimit
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.Limits == (security.Limits{}) {
		o.Limits = d.Limits
	}
	o.Logger = observability.OrNop(o.Logger)
	o.Tracer = observability.OrNopTracer(o.Tracer)
	if o.Strategy == nil {
		o.Strategy = recovery.NewLenientStrategy(o.Logger)
	}
	return o
}
