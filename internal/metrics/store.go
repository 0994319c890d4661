package metrics

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// DefBuckets are the default histogram buckets, covering the usual range
// of request latencies in seconds.
var DefBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Store is an in-process Registry implementation with write APIs for
// counters, gauges and histograms. All methods are safe for concurrent
// use. Snapshot order is deterministic: families sorted by name, samples
// sorted by label fingerprint.
type Store struct {
	mu       sync.RWMutex
	families map[string]*familyState
	enabled  bool
}

type familyState struct {
	help    string
	typ     FamilyType
	buckets []float64
	samples map[string]*sampleState
}

type sampleState struct {
	labels Labels
	value  float64

	// histogram state
	sum          float64
	count        uint64
	bucketCounts []uint64
}

// NewStore creates an empty store with collection enabled.
func NewStore() *Store {
	return &Store{
		families: make(map[string]*familyState),
		enabled:  true,
	}
}

// SetEnabled enables or disables metric collection. Reads are unaffected.
func (s *Store) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// IsEnabled returns whether metric collection is enabled.
func (s *Store) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// Describe sets the help text for a family. It may be called before or
// after the first observation.
func (s *Store) Describe(name, help string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fam, ok := s.families[name]; ok {
		fam.help = help
		return
	}
	s.families[name] = &familyState{
		help:    help,
		typ:     TypeUntyped,
		samples: make(map[string]*sampleState),
	}
}

// SetBuckets configures histogram buckets for a family. It has no effect
// once the family has recorded observations.
func (s *Store) SetBuckets(name string, buckets []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fam := s.family(name, TypeHistogram)
	if len(fam.samples) == 0 {
		fam.buckets = append([]float64(nil), buckets...)
	}
}

// Counter increments a counter by one.
func (s *Store) Counter(name string, labels Labels) {
	s.CounterAdd(name, 1, labels)
}

// CounterAdd increments a counter by delta. Negative deltas are ignored.
func (s *Store) CounterAdd(name string, delta float64, labels Labels) {
	if delta < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	fam := s.family(name, TypeCounter)
	fam.sample(labels).value += delta
}

// Gauge sets a gauge to the given value.
func (s *Store) Gauge(name string, value float64, labels Labels) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	fam := s.family(name, TypeGauge)
	fam.sample(labels).value = value
}

// Observe records a value in a histogram. Buckets default to DefBuckets
// unless SetBuckets was called first.
func (s *Store) Observe(name string, value float64, labels Labels) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	fam := s.family(name, TypeHistogram)
	if fam.buckets == nil {
		fam.buckets = DefBuckets
	}
	st := fam.sample(labels)
	if st.bucketCounts == nil {
		st.bucketCounts = make([]uint64, len(fam.buckets))
	}
	st.sum += value
	st.count++
	for i, bound := range fam.buckets {
		if value <= bound {
			st.bucketCounts[i]++
		}
	}
}

// Reset removes all families and samples.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.families = make(map[string]*familyState)
}

// Snapshot implements Registry. The returned families are deep copies
// owned by the caller.
func (s *Store) Snapshot(ctx context.Context) ([]Family, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.families))
	for name := range s.families {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Family, 0, len(names))
	for _, name := range names {
		fam := s.families[name]
		if len(fam.samples) == 0 {
			continue
		}
		out = append(out, fam.snapshot(name))
	}
	return out, nil
}

// family returns the state for name, creating it with the given type if
// needed. An untyped family created by Describe adopts the first writer's
// type. Caller must hold the write lock.
func (s *Store) family(name string, typ FamilyType) *familyState {
	fam, ok := s.families[name]
	if !ok {
		fam = &familyState{
			typ:     typ,
			samples: make(map[string]*sampleState),
		}
		s.families[name] = fam
		return fam
	}
	if fam.typ == TypeUntyped {
		fam.typ = typ
	}
	return fam
}

func (f *familyState) sample(labels Labels) *sampleState {
	key := labels.Fingerprint()
	st, ok := f.samples[key]
	if !ok {
		st = &sampleState{labels: labels.Clone()}
		f.samples[key] = st
	}
	return st
}

func (f *familyState) snapshot(name string) Family {
	keys := make([]string, 0, len(f.samples))
	for key := range f.samples {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fam := Family{
		Name: name,
		Help: f.help,
		Type: f.typ,
	}
	for _, key := range keys {
		st := f.samples[key]
		if f.typ == TypeHistogram {
			fam.Samples = append(fam.Samples, st.histogramSamples(f.buckets)...)
			continue
		}
		fam.Samples = append(fam.Samples, Sample{
			Labels: st.labels.Clone(),
			Value:  st.value,
		})
	}
	return fam
}

// formatBound renders a bucket upper bound for the "le" label value.
func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// histogramSamples expands a histogram observation into its cumulative
// bucket, sum and count series.
func (st *sampleState) histogramSamples(buckets []float64) []Sample {
	out := make([]Sample, 0, len(buckets)+3)
	var cumulative uint64
	for i, bound := range buckets {
		cumulative += st.bucketCounts[i]
		labels := st.labels.Clone()
		if labels == nil {
			labels = Labels{}
		}
		labels["le"] = formatBound(bound)
		out = append(out, Sample{
			Suffix: "_bucket",
			Labels: labels,
			Value:  float64(cumulative),
		})
	}
	infLabels := st.labels.Clone()
	if infLabels == nil {
		infLabels = Labels{}
	}
	infLabels["le"] = "+Inf"
	out = append(out,
		Sample{Suffix: "_bucket", Labels: infLabels, Value: float64(st.count)},
		Sample{Suffix: "_sum", Labels: st.labels.Clone(), Value: st.sum},
		Sample{Suffix: "_count", Labels: st.labels.Clone(), Value: float64(st.count)},
	)
	return out
}
