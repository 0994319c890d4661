// Package metrics defines the metric family data model and registry
// interfaces for promgate. A Registry produces read-only snapshots of
// metric families; the exposition package turns those snapshots into the
// Prometheus text format.
package metrics

import (
	"sort"
	"strings"
)

// FamilyType represents the type of a metric family.
type FamilyType string

const (
	TypeCounter   FamilyType = "counter"
	TypeGauge     FamilyType = "gauge"
	TypeHistogram FamilyType = "histogram"
	TypeSummary   FamilyType = "summary"
	TypeUntyped   FamilyType = "untyped"
)

// IsValid reports whether t is one of the known family types.
func (t FamilyType) IsValid() bool {
	switch t {
	case TypeCounter, TypeGauge, TypeHistogram, TypeSummary, TypeUntyped:
		return true
	}
	return false
}

// Labels represents key-value pairs attached to a sample.
type Labels map[string]string

// Clone returns a copy of the label set. A nil receiver clones to nil.
func (l Labels) Clone() Labels {
	if l == nil {
		return nil
	}
	out := make(Labels, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// fingerprintEscaper escapes the fingerprint separators inside names and
// values, so label sets whose values contain "," or "=" cannot collide
// with a differently structured set.
var fingerprintEscaper = strings.NewReplacer(`\`, `\\`, `=`, `\=`, `,`, `\,`)

// Fingerprint returns a deterministic string identity for the label set.
// Label names are sorted so that insertion order does not matter.
func (l Labels) Fingerprint() string {
	if len(l) == 0 {
		return ""
	}
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fingerprintEscaper.Replace(name))
		b.WriteByte('=')
		b.WriteString(fingerprintEscaper.Replace(l[name]))
	}
	return b.String()
}

// Sample is a single labeled observation within a family.
type Sample struct {
	// Suffix is appended to the family name on the sample line.
	// Histogram and summary families use it for the _bucket, _sum and
	// _count series; plain families leave it empty.
	Suffix string
	Labels Labels
	Value  float64
	// TimestampMs is the optional sample timestamp in milliseconds
	// since the epoch. Zero means no timestamp.
	TimestampMs int64
}

// Family is a named group of samples sharing help text and a type.
// Snapshots hand out deep copies, so a Family is immutable once retrieved.
type Family struct {
	Name    string
	Help    string
	Type    FamilyType
	Samples []Sample
}

// Clone returns a deep copy of the family.
func (f Family) Clone() Family {
	out := f
	out.Samples = make([]Sample, len(f.Samples))
	for i, s := range f.Samples {
		out.Samples[i] = s
		out.Samples[i].Labels = s.Labels.Clone()
	}
	return out
}
