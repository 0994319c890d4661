package metrics

import (
	"context"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/promgate/promgate/internal/errors"
)

// GathererRegistry adapts a prometheus.Gatherer to the Registry
// interface. It lets the exposition endpoint serve metrics collected
// through the Prometheus client library (including the standard Go and
// process collectors) alongside promgate's own Store.
type GathererRegistry struct {
	gatherer prometheus.Gatherer
}

// NewGathererRegistry creates a registry backed by the given gatherer.
func NewGathererRegistry(g prometheus.Gatherer) *GathererRegistry {
	return &GathererRegistry{gatherer: g}
}

// Snapshot implements Registry. A gather failure is surfaced as
// RegistryUnavailable with no partial result, even if the gatherer
// returned some families alongside the error.
func (r *GathererRegistry) Snapshot(ctx context.Context) ([]Family, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mfs, err := r.gatherer.Gather()
	if err != nil {
		return nil, errors.ErrRegistryUnavailable(err)
	}

	out := make([]Family, 0, len(mfs))
	for _, mf := range mfs {
		fam, err := convertFamily(mf)
		if err != nil {
			return nil, err
		}
		out = append(out, fam)
	}
	return out, nil
}

func convertFamily(mf *dto.MetricFamily) (Family, error) {
	name := mf.GetName()
	if name == "" {
		return Family{}, errors.ErrMalformedFamily("", "missing family name")
	}

	fam := Family{
		Name: name,
		Help: mf.GetHelp(),
		Type: convertType(mf.GetType()),
	}

	for _, m := range mf.GetMetric() {
		if m == nil {
			return Family{}, errors.ErrMalformedFamily(name, "nil metric entry")
		}
		samples, err := convertMetric(name, mf.GetType(), m)
		if err != nil {
			return Family{}, err
		}
		fam.Samples = append(fam.Samples, samples...)
	}
	return fam, nil
}

func convertType(t dto.MetricType) FamilyType {
	switch t {
	case dto.MetricType_COUNTER:
		return TypeCounter
	case dto.MetricType_GAUGE:
		return TypeGauge
	case dto.MetricType_HISTOGRAM:
		return TypeHistogram
	case dto.MetricType_SUMMARY:
		return TypeSummary
	default:
		return TypeUntyped
	}
}

func convertMetric(family string, typ dto.MetricType, m *dto.Metric) ([]Sample, error) {
	labels := convertLabels(m.GetLabel())
	ts := m.GetTimestampMs()

	switch typ {
	case dto.MetricType_COUNTER:
		if m.Counter == nil {
			return nil, errors.ErrMalformedFamily(family, "counter metric without counter value")
		}
		return []Sample{{Labels: labels, Value: m.Counter.GetValue(), TimestampMs: ts}}, nil

	case dto.MetricType_GAUGE:
		if m.Gauge == nil {
			return nil, errors.ErrMalformedFamily(family, "gauge metric without gauge value")
		}
		return []Sample{{Labels: labels, Value: m.Gauge.GetValue(), TimestampMs: ts}}, nil

	case dto.MetricType_HISTOGRAM:
		if m.Histogram == nil {
			return nil, errors.ErrMalformedFamily(family, "histogram metric without histogram value")
		}
		return convertHistogram(m.Histogram, labels, ts), nil

	case dto.MetricType_SUMMARY:
		if m.Summary == nil {
			return nil, errors.ErrMalformedFamily(family, "summary metric without summary value")
		}
		return convertSummary(m.Summary, labels, ts), nil

	default:
		if m.Untyped == nil {
			return nil, errors.ErrMalformedFamily(family, "untyped metric without value")
		}
		return []Sample{{Labels: labels, Value: m.Untyped.GetValue(), TimestampMs: ts}}, nil
	}
}

func convertLabels(pairs []*dto.LabelPair) Labels {
	if len(pairs) == 0 {
		return nil
	}
	labels := make(Labels, len(pairs))
	for _, p := range pairs {
		labels[p.GetName()] = p.GetValue()
	}
	return labels
}

// convertHistogram expands a histogram into _bucket, _sum and _count
// series. The implicit +Inf bucket is appended when the source omits it.
func convertHistogram(h *dto.Histogram, labels Labels, ts int64) []Sample {
	out := make([]Sample, 0, len(h.GetBucket())+3)
	sawInf := false
	for _, b := range h.GetBucket() {
		bound := b.GetUpperBound()
		le := formatBound(bound)
		if math.IsInf(bound, +1) {
			le = "+Inf"
			sawInf = true
		}
		bl := labels.Clone()
		if bl == nil {
			bl = Labels{}
		}
		bl["le"] = le
		out = append(out, Sample{
			Suffix:      "_bucket",
			Labels:      bl,
			Value:       float64(b.GetCumulativeCount()),
			TimestampMs: ts,
		})
	}
	if !sawInf {
		bl := labels.Clone()
		if bl == nil {
			bl = Labels{}
		}
		bl["le"] = "+Inf"
		out = append(out, Sample{
			Suffix:      "_bucket",
			Labels:      bl,
			Value:       float64(h.GetSampleCount()),
			TimestampMs: ts,
		})
	}
	out = append(out,
		Sample{Suffix: "_sum", Labels: labels.Clone(), Value: h.GetSampleSum(), TimestampMs: ts},
		Sample{Suffix: "_count", Labels: labels.Clone(), Value: float64(h.GetSampleCount()), TimestampMs: ts},
	)
	return out
}

// convertSummary expands a summary into quantile, _sum and _count series.
func convertSummary(sm *dto.Summary, labels Labels, ts int64) []Sample {
	out := make([]Sample, 0, len(sm.GetQuantile())+2)
	for _, q := range sm.GetQuantile() {
		ql := labels.Clone()
		if ql == nil {
			ql = Labels{}
		}
		ql["quantile"] = formatBound(q.GetQuantile())
		out = append(out, Sample{
			Labels:      ql,
			Value:       q.GetValue(),
			TimestampMs: ts,
		})
	}
	out = append(out,
		Sample{Suffix: "_sum", Labels: labels.Clone(), Value: sm.GetSampleSum(), TimestampMs: ts},
		Sample{Suffix: "_count", Labels: labels.Clone(), Value: float64(sm.GetSampleCount()), TimestampMs: ts},
	)
	return out
}
