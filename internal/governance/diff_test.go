package governance

import (
	"testing"

	"grafana-steward/internal/grafana"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compareDoc() grafana.Document {
	return grafana.Document{
		"uid":     "dash-a",
		"title":   "Cluster Overview",
		"tags":    []any{"managed", "ops"},
		"time":    map[string]any{"from": "now-6h", "to": "now"},
		"refresh": "1m",
		"templating": map[string]any{
			"list": []any{
				map[string]any{"name": "env", "type": "custom", "query": "dev,prod"},
			},
		},
		"panels": []any{
			panelWithGrid(1, "CPU", 0, 0, 12, 8),
			panelWithGrid(2, "Memory", 12, 0, 12, 8),
		},
	}
}

func TestCompare_IdenticalDashboards(t *testing.T) {
	doc := compareDoc()
	other, err := doc.Clone()
	require.NoError(t, err)

	report, err := Compare(
		CompareInput{Cluster: "prod", Doc: doc},
		CompareInput{Cluster: "staging", Doc: other},
	)
	require.NoError(t, err)

	assert.True(t, report.Summary.Identical)
	assert.Empty(t, report.Differences)
	assert.Equal(t, "prod", report.DashboardA.Cluster)
	assert.Equal(t, "staging", report.DashboardB.Cluster)
}

func TestCompare_TagOrderDoesNotMatter(t *testing.T) {
	a := compareDoc()
	b := compareDoc()
	b["tags"] = []any{"ops", "managed"}

	report, err := Compare(CompareInput{Doc: a}, CompareInput{Doc: b})
	require.NoError(t, err)
	assert.True(t, report.Summary.Identical)
}

func TestCompare_SingleGridChangeIsOneLayoutDifference(t *testing.T) {
	a := compareDoc()
	b := compareDoc()
	b["panels"] = []any{
		panelWithGrid(1, "CPU", 0, 0, 12, 8),
		panelWithGrid(2, "Memory", 12, 0, 8, 8), // width narrowed
	}

	report, err := Compare(CompareInput{Doc: a}, CompareInput{Doc: b})
	require.NoError(t, err)

	require.Len(t, report.Differences, 1)
	diff := report.Differences[0]
	assert.Equal(t, "layout", diff.Category)
	assert.Equal(t, "panel_2_grid_w", diff.Field)
	assert.Equal(t, 12, diff.ValueA)
	assert.Equal(t, 8, diff.ValueB)
	assert.Equal(t, []string{"layout"}, report.Summary.Categories)
}

func TestCompare_PanelPresence(t *testing.T) {
	a := compareDoc()
	b := compareDoc()
	b["panels"] = []any{
		panelWithGrid(1, "CPU", 0, 0, 12, 8),
		panelWithGrid(3, "Disk", 12, 0, 12, 8),
	}

	report, err := Compare(CompareInput{Doc: a}, CompareInput{Doc: b})
	require.NoError(t, err)

	fields := map[string][2]any{}
	for _, diff := range report.Differences {
		fields[diff.Field] = [2]any{diff.ValueA, diff.ValueB}
	}
	assert.Equal(t, [2]any{"present", "missing"}, fields["panel_2"])
	assert.Equal(t, [2]any{"missing", "present"}, fields["panel_3"])
}

func TestCompare_VariablePresenceAndFields(t *testing.T) {
	a := compareDoc()
	b := compareDoc()
	b["templating"] = map[string]any{
		"list": []any{
			map[string]any{"name": "env", "type": "custom", "query": "dev,prod,stage"},
			map[string]any{"name": "region", "type": "custom"},
		},
	}

	report, err := Compare(CompareInput{Doc: a}, CompareInput{Doc: b})
	require.NoError(t, err)

	fields := make([]string, 0, len(report.Differences))
	for _, diff := range report.Differences {
		assert.Equal(t, "variables", diff.Category)
		fields = append(fields, diff.Field)
	}
	assert.ElementsMatch(t, []string{"variable_region", "variable_env_query"}, fields)
}

func TestCompare_TimezoneDefaultsToBrowser(t *testing.T) {
	a := compareDoc()
	b := compareDoc()
	b["timezone"] = "browser"

	report, err := Compare(CompareInput{Doc: a}, CompareInput{Doc: b})
	require.NoError(t, err)
	assert.True(t, report.Summary.Identical, "absent timezone and explicit browser are the same")
}

func TestCompare_BasicAndTimeFields(t *testing.T) {
	a := compareDoc()
	b := compareDoc()
	b["title"] = "Cluster Overview v2"
	b["refresh"] = "5m"
	b["time"] = map[string]any{"from": "now-24h", "to": "now"}

	report, err := Compare(CompareInput{Doc: a}, CompareInput{Doc: b})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Summary.TotalDifferences)
	assert.Equal(t, []string{"basic", "time"}, report.Summary.Categories)
	assert.False(t, report.Summary.Identical)
}
