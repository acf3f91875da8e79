package governance

import (
	"testing"

	"grafana-steward/internal/grafana"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func panelWithGrid(id float64, title string, x, y, w, h float64) map[string]any {
	return map[string]any{
		"id":      id,
		"title":   title,
		"type":    "timeseries",
		"gridPos": map[string]any{"x": x, "y": y, "w": w, "h": h},
	}
}

func TestInspect_BasicStructure(t *testing.T) {
	doc := grafana.Document{
		"uid":   "dash-1",
		"title": "Cluster Overview",
		"tags":  []any{"managed"},
		"time":  map[string]any{"from": "now-6h", "to": "now"},
		"templating": map[string]any{
			"list": []any{
				map[string]any{"name": "env", "type": "custom"},
			},
		},
		"panels": []any{
			panelWithGrid(1, "CPU", 0, 0, 12, 8),
		},
	}
	meta := &grafana.Meta{FolderUID: "ops", FolderTitle: "Operations"}

	report, err := Inspect(doc, meta, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "dash-1", report.Dashboard.UID)
	assert.Equal(t, "ops", report.Dashboard.FolderUID)
	assert.Equal(t, "now-6h", report.TimeSettings.From)
	assert.Equal(t, "browser", report.TimeSettings.Timezone, "missing timezone defaults to browser")
	assert.Equal(t, 1, report.Summary.TotalPanels)
	assert.Equal(t, 1, report.Summary.TotalVariables)
	assert.Equal(t, []string{"custom"}, report.Summary.VariableTypes)
	assert.Equal(t, "ok", report.DatasourceResolution)
	assert.Empty(t, report.ValidationIssues)
}

func TestInspect_OverlapDetection(t *testing.T) {
	doc := grafana.Document{
		"uid":   "dash-1",
		"title": "Overlaps",
		"panels": []any{
			panelWithGrid(1, "A", 0, 0, 12, 8),
			panelWithGrid(2, "B", 6, 4, 12, 8),  // overlaps A
			panelWithGrid(3, "C", 12, 0, 12, 8), // shares an edge with A, overlaps B
			panelWithGrid(4, "D", 0, 2, 24, 3),  // full-width row, overlaps A, B and C
		},
	}

	report, err := Inspect(doc, nil, map[string]string{})
	require.NoError(t, err)

	var pairs [][2]string
	for _, finding := range report.ValidationIssues {
		require.Equal(t, "overlapping_panels", finding.Type)
		pairs = append(pairs, [2]string{finding.PanelTitle, finding.ConflictingPanel})
	}
	assert.ElementsMatch(t, [][2]string{
		{"B", "A"},
		{"C", "B"},
		{"D", "A"},
		{"D", "B"},
		{"D", "C"},
	}, pairs, "every overlapping pair is reported, edge-sharing panels are not")
}

func TestInspect_MissingDatasource(t *testing.T) {
	panel := panelWithGrid(1, "CPU", 0, 0, 12, 8)
	panel["datasource"] = map[string]any{"uid": "ghost-ds", "type": "prometheus"}
	doc := grafana.Document{
		"uid":    "dash-1",
		"title":  "DS",
		"panels": []any{panel},
	}

	report, err := Inspect(doc, nil, map[string]string{"known-ds": "Prometheus"})
	require.NoError(t, err)

	require.Len(t, report.ValidationIssues, 1)
	finding := report.ValidationIssues[0]
	assert.Equal(t, "missing_datasource", finding.Type)
	assert.Equal(t, "ghost-ds", finding.DatasourceUID)
	require.NotNil(t, report.Panels[0].Datasource)
	assert.Equal(t, "Unknown", report.Panels[0].Datasource.Name)
	assert.Equal(t, "prometheus", report.Panels[0].Datasource.Type)
}

func TestInspect_UnavailableResolutionSuppressesMissingFindings(t *testing.T) {
	panel := panelWithGrid(1, "CPU", 0, 0, 12, 8)
	panel["datasource"] = map[string]any{"uid": "ghost-ds"}
	doc := grafana.Document{
		"uid":    "dash-1",
		"title":  "DS",
		"panels": []any{panel},
	}

	report, err := Inspect(doc, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "unavailable", report.DatasourceResolution)
	assert.Empty(t, report.ValidationIssues,
		"a failed datasource listing must not fabricate missing_datasource findings")
	assert.Equal(t, 1, report.Summary.UniqueDatasources)
}

func TestInspect_SurfacesPanelDescriptionAndLegacyDatasource(t *testing.T) {
	panel := panelWithGrid(1, "CPU", 0, 0, 12, 8)
	panel["description"] = "Cluster-wide CPU saturation"
	panel["datasource"] = "Prometheus"
	doc := grafana.Document{"uid": "d", "title": "T", "panels": []any{panel}}

	report, err := Inspect(doc, nil, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "Cluster-wide CPU saturation", report.Panels[0].Description)
	require.NotNil(t, report.Panels[0].Datasource)
	assert.Equal(t, "Prometheus", report.Panels[0].Datasource.Name,
		"a legacy bare-name datasource is carried verbatim")
	assert.Empty(t, report.Panels[0].Datasource.UID)
	assert.Empty(t, report.ValidationIssues, "legacy references cannot be checked against uids")
}

func TestInspect_ResolvesKnownDatasourceName(t *testing.T) {
	panel := panelWithGrid(1, "CPU", 0, 0, 12, 8)
	panel["datasource"] = map[string]any{"uid": "prom-1", "type": "prometheus"}
	doc := grafana.Document{"uid": "d", "title": "T", "panels": []any{panel}}

	report, err := Inspect(doc, nil, map[string]string{"prom-1": "Prometheus Main"})
	require.NoError(t, err)

	require.NotNil(t, report.Panels[0].Datasource)
	assert.Equal(t, "Prometheus Main", report.Panels[0].Datasource.Name)
	assert.Equal(t, map[string]string{"prom-1": "Prometheus Main"}, report.DatasourcesUsed)
}
