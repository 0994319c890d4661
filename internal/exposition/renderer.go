// Package exposition renders metric family snapshots into the Prometheus
// text exposition format (version 0.0.4). The renderer is configured by
// composition: a static or per-render set of extra labels is injected into
// every sample line instead of subclassing a base renderer.
package exposition

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/promgate/promgate/internal/errors"
	"github.com/promgate/promgate/internal/metrics"
)

// ContentType is the MIME type of the rendered document, understood by
// standard Prometheus scrapers.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// ValueFunc supplies the value for an injected label at render time. It
// is resolved once per Render call, so a single document is internally
// consistent.
type ValueFunc func() string

// Options configures a Renderer.
type Options struct {
	// ExtraLabels are injected into every sample line with fixed
	// values. They take precedence over sample labels of the same name.
	ExtraLabels metrics.Labels

	// DynamicLabels are injected into every sample line with values
	// resolved at the start of each Render call. They take precedence
	// over ExtraLabels.
	DynamicLabels map[string]ValueFunc

	// IncludeTimestamps emits the optional per-sample timestamp
	// (milliseconds) for samples that carry one.
	IncludeTimestamps bool
}

// WithTimestampLabel returns a copy of opts that injects a "timestamp"
// label holding the render-time unix timestamp in seconds. now may be nil,
// in which case time.Now is used.
func (o Options) WithTimestampLabel(now func() time.Time) Options {
	if now == nil {
		now = time.Now
	}
	out := o
	out.DynamicLabels = make(map[string]ValueFunc, len(o.DynamicLabels)+1)
	for name, fn := range o.DynamicLabels {
		out.DynamicLabels[name] = fn
	}
	out.DynamicLabels["timestamp"] = func() string {
		return strconv.FormatInt(now().Unix(), 10)
	}
	return out
}

// Renderer serializes metric families to the text exposition format.
type Renderer struct {
	opts Options
}

// NewRenderer creates a renderer with the given options.
func NewRenderer(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

// Render produces the complete exposition document for the given
// families, in input order. Zero families render to the empty string.
// On error no partial document is returned.
func (r *Renderer) Render(families []metrics.Family) (string, error) {
	injected := r.resolveInjected()

	var b strings.Builder
	for i := range families {
		if err := r.renderFamily(&b, &families[i], injected); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

// resolveInjected merges static and dynamic injected labels, resolving
// the dynamic values once so every sample in the document agrees.
func (r *Renderer) resolveInjected() metrics.Labels {
	if len(r.opts.ExtraLabels) == 0 && len(r.opts.DynamicLabels) == 0 {
		return nil
	}
	injected := r.opts.ExtraLabels.Clone()
	if injected == nil {
		injected = metrics.Labels{}
	}
	for name, fn := range r.opts.DynamicLabels {
		injected[name] = fn()
	}
	return injected
}

func (r *Renderer) renderFamily(b *strings.Builder, fam *metrics.Family, injected metrics.Labels) error {
	if err := validateFamily(fam); err != nil {
		return err
	}

	if fam.Help != "" {
		b.WriteString("# HELP ")
		b.WriteString(fam.Name)
		b.WriteByte(' ')
		b.WriteString(escapeHelp(fam.Help))
		b.WriteByte('\n')
	}
	b.WriteString("# TYPE ")
	b.WriteString(fam.Name)
	b.WriteByte(' ')
	b.WriteString(string(fam.Type))
	b.WriteByte('\n')

	for i := range fam.Samples {
		r.renderSample(b, fam.Name, &fam.Samples[i], injected)
	}
	return nil
}

func (r *Renderer) renderSample(b *strings.Builder, name string, s *metrics.Sample, injected metrics.Labels) {
	b.WriteString(name)
	b.WriteString(s.Suffix)

	labels := mergeLabels(s.Labels, injected)
	if len(labels) > 0 {
		names := make([]string, 0, len(labels))
		for ln := range labels {
			names = append(names, ln)
		}
		sort.Strings(names)

		b.WriteByte('{')
		for i, ln := range names {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(ln)
			b.WriteString(`="`)
			b.WriteString(escapeLabelValue(labels[ln]))
			b.WriteByte('"')
		}
		b.WriteByte('}')
	}

	b.WriteByte(' ')
	b.WriteString(formatValue(s.Value))

	if r.opts.IncludeTimestamps && s.TimestampMs != 0 {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(s.TimestampMs, 10))
	}
	b.WriteByte('\n')
}

// validateFamily rejects families that cannot be expressed in the text
// format. A well-behaved registry never produces one.
func validateFamily(fam *metrics.Family) error {
	if fam.Name == "" {
		return errors.ErrMalformedFamily("", "missing family name")
	}
	if !fam.Type.IsValid() {
		return errors.ErrMalformedFamily(fam.Name, "unknown family type "+strconv.Quote(string(fam.Type)))
	}
	for i := range fam.Samples {
		for ln := range fam.Samples[i].Labels {
			if ln == "" {
				return errors.ErrMalformedFamily(fam.Name, "empty label name")
			}
		}
	}
	return nil
}

// mergeLabels overlays injected labels onto sample labels. Injected
// labels win on collision.
func mergeLabels(sample, injected metrics.Labels) metrics.Labels {
	if len(injected) == 0 {
		return sample
	}
	if len(sample) == 0 {
		return injected
	}
	merged := sample.Clone()
	for name, value := range injected {
		merged[name] = value
	}
	return merged
}

// formatValue renders a sample value: integral values without a decimal
// point, other floats with shortest exact round-trip precision, and the
// special values per the exposition convention.
func formatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, +1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var (
	helpEscaper       = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelValueEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
)

func escapeHelp(s string) string {
	return helpEscaper.Replace(s)
}

func escapeLabelValue(s string) string {
	return labelValueEscaper.Replace(s)
}
