package exposition

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promgate/promgate/internal/errors"
	"github.com/promgate/promgate/internal/metrics"
)

func TestRenderEmptySnapshot(t *testing.T) {
	renderer := NewRenderer(Options{})

	doc, err := renderer.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "", doc)

	doc, err = renderer.Render([]metrics.Family{})
	require.NoError(t, err)
	assert.Equal(t, "", doc)
}

func TestRenderSingleCounter(t *testing.T) {
	renderer := NewRenderer(Options{
		ExtraLabels: metrics.Labels{"timestamp": "1700000000"},
	})

	families := []metrics.Family{
		{
			Name:    "http_requests",
			Help:    "Total requests",
			Type:    metrics.TypeCounter,
			Samples: []metrics.Sample{{Value: 42}},
		},
	}

	doc, err := renderer.Render(families)
	require.NoError(t, err)

	expected := "# HELP http_requests Total requests\n" +
		"# TYPE http_requests counter\n" +
		"http_requests{timestamp=\"1700000000\"} 42\n"
	assert.Equal(t, expected, doc)
}

func TestRenderFamilyStructure(t *testing.T) {
	renderer := NewRenderer(Options{})

	families := []metrics.Family{
		{
			Name: "first_total",
			Help: "First family",
			Type: metrics.TypeCounter,
			Samples: []metrics.Sample{
				{Labels: metrics.Labels{"a": "1"}, Value: 1},
				{Labels: metrics.Labels{"a": "2"}, Value: 2},
			},
		},
		{
			Name:    "second_gauge",
			Help:    "Second family",
			Type:    metrics.TypeGauge,
			Samples: []metrics.Sample{{Value: 3}},
		},
	}

	doc, err := renderer.Render(families)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(doc, "\n"), "\n")
	require.Len(t, lines, 7)

	// HELP and TYPE precede every sample line of their family, and
	// families do not interleave.
	assert.Equal(t, "# HELP first_total First family", lines[0])
	assert.Equal(t, "# TYPE first_total counter", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "first_total{"))
	assert.True(t, strings.HasPrefix(lines[3], "first_total{"))
	assert.Equal(t, "# HELP second_gauge Second family", lines[4])
	assert.Equal(t, "# TYPE second_gauge gauge", lines[5])
	assert.Equal(t, "second_gauge 3", lines[6])

	assert.True(t, strings.HasSuffix(doc, "\n"), "document must end with a newline")
}

func TestRenderValueFormatting(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		expected string
	}{
		{"integer without decimal point", 42, "42"},
		{"zero", 0, "0"},
		{"negative integer", -7, "-7"},
		{"float round trip", 0.1, "0.1"},
		{"small float", 1.5e-9, "1.5e-09"},
		{"NaN", math.NaN(), "NaN"},
		{"positive infinity", math.Inf(+1), "+Inf"},
		{"negative infinity", math.Inf(-1), "-Inf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatValue(tt.value))
		})
	}
}

func TestRenderLabelEscaping(t *testing.T) {
	renderer := NewRenderer(Options{})

	families := []metrics.Family{
		{
			Name: "test_total",
			Type: metrics.TypeCounter,
			Samples: []metrics.Sample{
				{Labels: metrics.Labels{"path": `C:\temp`, "msg": "line1\nline2", "quoted": `say "hi"`}, Value: 1},
			},
		},
	}

	doc, err := renderer.Render(families)
	require.NoError(t, err)

	assert.Contains(t, doc, `path="C:\\temp"`)
	assert.Contains(t, doc, `msg="line1\nline2"`)
	assert.Contains(t, doc, `quoted="say \"hi\""`)
}

func TestRenderHelpEscaping(t *testing.T) {
	renderer := NewRenderer(Options{})

	families := []metrics.Family{
		{
			Name:    "test_total",
			Help:    "first line\nsecond \\ line",
			Type:    metrics.TypeCounter,
			Samples: []metrics.Sample{{Value: 1}},
		},
	}

	doc, err := renderer.Render(families)
	require.NoError(t, err)
	assert.Contains(t, doc, `# HELP test_total first line\nsecond \\ line`)
}

func TestRenderDeterministicLabelOrder(t *testing.T) {
	renderer := NewRenderer(Options{})

	families := []metrics.Family{
		{
			Name: "test_total",
			Type: metrics.TypeCounter,
			Samples: []metrics.Sample{
				{Labels: metrics.Labels{"zeta": "1", "alpha": "2", "mid": "3"}, Value: 1},
			},
		},
	}

	doc, err := renderer.Render(families)
	require.NoError(t, err)
	assert.Contains(t, doc, `test_total{alpha="2",mid="3",zeta="1"} 1`)
}

func TestRenderIdempotence(t *testing.T) {
	renderer := NewRenderer(Options{
		ExtraLabels: metrics.Labels{"instance": "a"},
	})

	families := []metrics.Family{
		{
			Name: "test_total",
			Help: "help",
			Type: metrics.TypeCounter,
			Samples: []metrics.Sample{
				{Labels: metrics.Labels{"b": "2", "a": "1"}, Value: 1.25},
			},
		},
	}

	first, err := renderer.Render(families)
	require.NoError(t, err)
	second, err := renderer.Render(families)
	require.NoError(t, err)
	assert.Equal(t, first, second, "same snapshot must render byte-identically")
}

func TestRenderInjectedLabels(t *testing.T) {
	t.Run("injected into unlabeled samples", func(t *testing.T) {
		renderer := NewRenderer(Options{ExtraLabels: metrics.Labels{"env": "prod"}})

		doc, err := renderer.Render([]metrics.Family{
			{Name: "a_total", Type: metrics.TypeCounter, Samples: []metrics.Sample{{Value: 1}}},
		})
		require.NoError(t, err)
		assert.Contains(t, doc, `a_total{env="prod"} 1`)
	})

	t.Run("merged with sample labels", func(t *testing.T) {
		renderer := NewRenderer(Options{ExtraLabels: metrics.Labels{"env": "prod"}})

		doc, err := renderer.Render([]metrics.Family{
			{Name: "a_total", Type: metrics.TypeCounter, Samples: []metrics.Sample{
				{Labels: metrics.Labels{"method": "GET"}, Value: 1},
			}},
		})
		require.NoError(t, err)
		assert.Contains(t, doc, `a_total{env="prod",method="GET"} 1`)
	})

	t.Run("injected label wins on collision", func(t *testing.T) {
		renderer := NewRenderer(Options{ExtraLabels: metrics.Labels{"env": "prod"}})

		doc, err := renderer.Render([]metrics.Family{
			{Name: "a_total", Type: metrics.TypeCounter, Samples: []metrics.Sample{
				{Labels: metrics.Labels{"env": "test"}, Value: 1},
			}},
		})
		require.NoError(t, err)
		assert.Contains(t, doc, `a_total{env="prod"} 1`)
	})

	t.Run("injection does not mutate the snapshot", func(t *testing.T) {
		renderer := NewRenderer(Options{ExtraLabels: metrics.Labels{"env": "prod"}})
		sample := metrics.Sample{Labels: metrics.Labels{"method": "GET"}, Value: 1}

		_, err := renderer.Render([]metrics.Family{
			{Name: "a_total", Type: metrics.TypeCounter, Samples: []metrics.Sample{sample}},
		})
		require.NoError(t, err)
		assert.NotContains(t, sample.Labels, "env")
	})
}

func TestRenderDynamicLabels(t *testing.T) {
	calls := 0
	renderer := NewRenderer(Options{
		DynamicLabels: map[string]ValueFunc{
			"seq": func() string {
				calls++
				return "v"
			},
		},
	})

	families := []metrics.Family{
		{Name: "a_total", Type: metrics.TypeCounter, Samples: []metrics.Sample{
			{Value: 1}, {Labels: metrics.Labels{"x": "1"}, Value: 2},
		}},
	}

	doc, err := renderer.Render(families)
	require.NoError(t, err)

	// Resolved once per render, applied to every sample.
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, strings.Count(doc, `seq="v"`))
}

func TestWithTimestampLabel(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	opts := Options{}.WithTimestampLabel(func() time.Time { return fixed })
	renderer := NewRenderer(opts)

	doc, err := renderer.Render([]metrics.Family{
		{
			Name:    "http_requests",
			Help:    "Total requests",
			Type:    metrics.TypeCounter,
			Samples: []metrics.Sample{{Value: 42}},
		},
	})
	require.NoError(t, err)

	expected := "# HELP http_requests Total requests\n" +
		"# TYPE http_requests counter\n" +
		"http_requests{timestamp=\"1700000000\"} 42\n"
	assert.Equal(t, expected, doc)
}

func TestRenderSampleTimestamps(t *testing.T) {
	families := []metrics.Family{
		{Name: "a_total", Type: metrics.TypeCounter, Samples: []metrics.Sample{
			{Value: 1, TimestampMs: 1700000000123},
		}},
	}

	t.Run("disabled by default", func(t *testing.T) {
		doc, err := NewRenderer(Options{}).Render(families)
		require.NoError(t, err)
		assert.Contains(t, doc, "a_total 1\n")
	})

	t.Run("emitted when enabled", func(t *testing.T) {
		doc, err := NewRenderer(Options{IncludeTimestamps: true}).Render(families)
		require.NoError(t, err)
		assert.Contains(t, doc, "a_total 1 1700000000123\n")
	})
}

func TestRenderMalformedFamily(t *testing.T) {
	renderer := NewRenderer(Options{})

	tests := []struct {
		name   string
		family metrics.Family
	}{
		{
			"missing name",
			metrics.Family{Type: metrics.TypeCounter, Samples: []metrics.Sample{{Value: 1}}},
		},
		{
			"unknown type",
			metrics.Family{Name: "a_total", Type: "meter", Samples: []metrics.Sample{{Value: 1}}},
		},
		{
			"empty label name",
			metrics.Family{Name: "a_total", Type: metrics.TypeCounter, Samples: []metrics.Sample{
				{Labels: metrics.Labels{"": "v"}, Value: 1},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := renderer.Render([]metrics.Family{tt.family})
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeMalformedFamily),
				"expected MALFORMED_FAMILY, got %s", errors.GetCode(err))
			assert.Empty(t, doc, "no partial output on error")
		})
	}
}

func TestRenderSuffixedSamples(t *testing.T) {
	renderer := NewRenderer(Options{})

	families := []metrics.Family{
		{
			Name: "request_seconds",
			Help: "Request durations",
			Type: metrics.TypeHistogram,
			Samples: []metrics.Sample{
				{Suffix: "_bucket", Labels: metrics.Labels{"le": "1"}, Value: 2},
				{Suffix: "_bucket", Labels: metrics.Labels{"le": "+Inf"}, Value: 3},
				{Suffix: "_sum", Value: 4.5},
				{Suffix: "_count", Value: 3},
			},
		},
	}

	doc, err := renderer.Render(families)
	require.NoError(t, err)

	assert.Contains(t, doc, "# TYPE request_seconds histogram\n")
	assert.Contains(t, doc, `request_seconds_bucket{le="1"} 2`)
	assert.Contains(t, doc, `request_seconds_bucket{le="+Inf"} 3`)
	assert.Contains(t, doc, "request_seconds_sum 4.5\n")
	assert.Contains(t, doc, "request_seconds_count 3\n")
}

// TestRenderRoundTrip feeds the rendered document through the standard
// text-format parser and checks that the same (name, labels, value)
// triples come back.
func TestRenderRoundTrip(t *testing.T) {
	renderer := NewRenderer(Options{ExtraLabels: metrics.Labels{"instance": "test-1"}})

	families := []metrics.Family{
		{
			Name: "http_requests_total",
			Help: "Total requests",
			Type: metrics.TypeCounter,
			Samples: []metrics.Sample{
				{Labels: metrics.Labels{"method": "GET", "status": "200"}, Value: 1027},
				{Labels: metrics.Labels{"method": "POST", "status": "500"}, Value: 3},
			},
		},
		{
			Name: "temperature_celsius",
			Help: `Outdoor temperature with "quotes" and \backslash`,
			Type: metrics.TypeGauge,
			Samples: []metrics.Sample{
				{Labels: metrics.Labels{"site": "north\nroof"}, Value: -17.5},
			},
		},
	}

	doc, err := renderer.Render(families)
	require.NoError(t, err)

	var parser expfmt.TextParser
	parsed, err := parser.TextToMetricFamilies(strings.NewReader(doc))
	require.NoError(t, err, "document must parse with the standard parser")
	require.Len(t, parsed, 2)

	requests := parsed["http_requests_total"]
	require.NotNil(t, requests)
	assert.Equal(t, "Total requests", requests.GetHelp())
	require.Len(t, requests.GetMetric(), 2)
	for _, m := range requests.GetMetric() {
		labels := map[string]string{}
		for _, p := range m.GetLabel() {
			labels[p.GetName()] = p.GetValue()
		}
		assert.Equal(t, "test-1", labels["instance"])
		switch labels["method"] {
		case "GET":
			assert.Equal(t, float64(1027), m.GetCounter().GetValue())
		case "POST":
			assert.Equal(t, float64(3), m.GetCounter().GetValue())
		default:
			t.Errorf("unexpected method label %q", labels["method"])
		}
	}

	temp := parsed["temperature_celsius"]
	require.NotNil(t, temp)
	require.Len(t, temp.GetMetric(), 1)
	assert.Equal(t, -17.5, temp.GetMetric()[0].GetGauge().GetValue())
	for _, p := range temp.GetMetric()[0].GetLabel() {
		if p.GetName() == "site" {
			assert.Equal(t, "north\nroof", p.GetValue())
		}
	}
}
