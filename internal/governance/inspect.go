package governance

import (
	"fmt"
	"sort"

	"grafana-steward/internal/grafana"
)

// Finding is a structural problem discovered during inspection.
type Finding struct {
	Type             string `json:"type"`
	PanelID          int64  `json:"panel_id,omitempty"`
	PanelTitle       string `json:"panel_title,omitempty"`
	DatasourceUID    string `json:"datasource_uid,omitempty"`
	ConflictingPanel string `json:"conflicting_panel,omitempty"`
	Message          string `json:"message"`
}

type InspectedDatasource struct {
	UID  string `json:"uid,omitempty"`
	Type string `json:"type,omitempty"`
	Name string `json:"name"`
}

type InspectedQuery struct {
	RefID      string `json:"refId"`
	Datasource any    `json:"datasource,omitempty"`
	Hide       bool   `json:"hide"`
	QueryType  string `json:"query_type,omitempty"`
	Expr       string `json:"expr,omitempty"`
	RawSQL     string `json:"rawSql,omitempty"`
	Query      any    `json:"query,omitempty"`
	Format     string `json:"format,omitempty"`
}

type InspectedPanel struct {
	ID          int64                `json:"id"`
	Title       string               `json:"title"`
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	GridPos     *grafana.GridPos     `json:"gridPos,omitempty"`
	Datasource  *InspectedDatasource `json:"datasource,omitempty"`
	Queries     []InspectedQuery     `json:"queries"`
}

type InspectedVariable struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Label      string         `json:"label,omitempty"`
	Datasource any            `json:"datasource,omitempty"`
	Query      any            `json:"query,omitempty"`
	Multi      bool           `json:"multi"`
	IncludeAll bool           `json:"includeAll"`
	Current    map[string]any `json:"current,omitempty"`
}

type InspectionSummary struct {
	TotalPanels       int      `json:"total_panels"`
	TotalVariables    int      `json:"total_variables"`
	UniqueDatasources int      `json:"unique_datasources"`
	ValidationIssues  int      `json:"validation_issues"`
	PanelTypes        []string `json:"panel_types"`
	VariableTypes     []string `json:"variable_types"`
}

type InspectionReport struct {
	Dashboard struct {
		UID         string   `json:"uid"`
		Title       string   `json:"title"`
		Description string   `json:"description,omitempty"`
		Tags        []string `json:"tags,omitempty"`
		Version     int64    `json:"version"`
		Created     string   `json:"created,omitempty"`
		Updated     string   `json:"updated,omitempty"`
		FolderUID   string   `json:"folder_uid,omitempty"`
		FolderTitle string   `json:"folder_title,omitempty"`
		Editable    any      `json:"editable,omitempty"`
		Refresh     any      `json:"refresh,omitempty"`
	} `json:"dashboard"`
	TimeSettings struct {
		From     string `json:"from"`
		To       string `json:"to"`
		Timezone string `json:"timezone"`
	} `json:"time_settings"`
	Variables []InspectedVariable `json:"variables"`
	Panels    []InspectedPanel    `json:"panels"`
	// DatasourceResolution is "ok" when a datasource map was supplied and
	// "unavailable" when the listing could not be obtained; in the latter
	// case missing_datasource findings are suppressed rather than invented.
	DatasourceResolution string            `json:"datasource_resolution"`
	DatasourcesUsed      map[string]string `json:"datasources_used"`
	ValidationIssues     []Finding         `json:"validation_issues"`
	Summary              InspectionSummary `json:"summary"`
}

// Inspect produces a normalized structural report from a raw dashboard
// document. datasources maps known datasource uid to display name; nil means
// resolution is unavailable. The input document is never mutated.
func Inspect(doc grafana.Document, meta *grafana.Meta, datasources map[string]string) (*InspectionReport, error) {
	dashboard, err := doc.Decode()
	if err != nil {
		return nil, err
	}

	report := &InspectionReport{
		Variables:        []InspectedVariable{},
		Panels:           []InspectedPanel{},
		DatasourcesUsed:  map[string]string{},
		ValidationIssues: []Finding{},
	}

	report.Dashboard.UID = dashboard.UID
	report.Dashboard.Title = dashboard.Title
	report.Dashboard.Description = dashboard.Description
	report.Dashboard.Tags = dashboard.Tags
	report.Dashboard.Version = dashboard.Version
	report.Dashboard.Editable = dashboard.Editable
	report.Dashboard.Refresh = dashboard.Refresh
	if meta != nil {
		report.Dashboard.Created = meta.Created
		report.Dashboard.Updated = meta.Updated
		report.Dashboard.FolderUID = meta.FolderUID
		report.Dashboard.FolderTitle = meta.FolderTitle
	}

	report.TimeSettings.From = dashboard.Time.From
	report.TimeSettings.To = dashboard.Time.To
	report.TimeSettings.Timezone = dashboard.Timezone
	if report.TimeSettings.Timezone == "" {
		report.TimeSettings.Timezone = "browser"
	}

	report.DatasourceResolution = "ok"
	if datasources == nil {
		report.DatasourceResolution = "unavailable"
	}

	for _, v := range dashboard.Templating.List {
		report.Variables = append(report.Variables, InspectedVariable{
			Name:       v.Name,
			Type:       v.Type,
			Label:      v.Label,
			Datasource: v.Datasource,
			Query:      v.Query,
			Multi:      v.Multi,
			IncludeAll: v.IncludeAll,
			Current:    v.Current,
		})
	}

	type rect struct {
		x, y, w, h int
		title      string
	}
	var placed []rect

	for _, panel := range dashboard.Panels {
		if panel == nil {
			continue
		}

		inspected := InspectedPanel{
			Title:       panel.Title,
			Type:        panel.Type,
			Description: panel.Description,
			GridPos:     panel.GridPos,
			Queries:     []InspectedQuery{},
		}
		if panel.ID != nil {
			inspected.ID = *panel.ID
		}

		if uid, legacy, ok := grafana.DatasourceRef(panel.Datasource); ok {
			ds := &InspectedDatasource{UID: uid, Name: legacy}
			if m, isMap := panel.Datasource.(map[string]any); isMap {
				ds.Type, _ = m["type"].(string)
			}
			if uid != "" {
				name, known := datasources[uid]
				if known {
					ds.Name = name
				} else {
					ds.Name = "Unknown"
				}
				report.DatasourcesUsed[uid] = ds.Name
				if datasources != nil && !known {
					report.ValidationIssues = append(report.ValidationIssues, Finding{
						Type:          "missing_datasource",
						PanelID:       inspected.ID,
						PanelTitle:    panel.Title,
						DatasourceUID: uid,
						Message: fmt.Sprintf("Panel %q references missing datasource uid %q",
							panel.Title, uid),
					})
				}
			}
			inspected.Datasource = ds
		}

		for _, target := range panel.Targets {
			inspected.Queries = append(inspected.Queries, InspectedQuery{
				RefID:      target.RefID,
				Datasource: target.Datasource,
				Hide:       target.Hide,
				QueryType:  target.QueryType,
				Expr:       target.Expr,
				RawSQL:     target.RawSQL,
				Query:      target.Query,
				Format:     target.Format,
			})
		}

		// Overlap test against every previously seen panel in document
		// order; each overlapping pair is reported once, keyed by the
		// later panel.
		if gp := panel.GridPos; gp != nil {
			current := rect{x: gp.X, y: gp.Y, w: gp.W, h: gp.H, title: panel.Title}
			for _, prev := range placed {
				if rectsOverlap(current.x, current.y, current.w, current.h, prev.x, prev.y, prev.w, prev.h) {
					report.ValidationIssues = append(report.ValidationIssues, Finding{
						Type:             "overlapping_panels",
						PanelID:          inspected.ID,
						PanelTitle:       panel.Title,
						ConflictingPanel: prev.title,
						Message: fmt.Sprintf("Panel %q overlaps with %q",
							panel.Title, prev.title),
					})
				}
			}
			placed = append(placed, current)
		}

		report.Panels = append(report.Panels, inspected)
	}

	report.Summary = InspectionSummary{
		TotalPanels:       len(report.Panels),
		TotalVariables:    len(report.Variables),
		UniqueDatasources: len(report.DatasourcesUsed),
		ValidationIssues:  len(report.ValidationIssues),
		PanelTypes:        distinctSorted(report.Panels, func(p InspectedPanel) string { return p.Type }),
		VariableTypes:     distinctSorted(report.Variables, func(v InspectedVariable) string { return v.Type }),
	}

	return report, nil
}

// rectsOverlap is the half-open interval test over [x, x+w) x [y, y+h).
// Panels that merely share an edge do not overlap.
func rectsOverlap(x1, y1, w1, h1, x2, y2, w2, h2 int) bool {
	return x1 < x2+w2 && x1+w1 > x2 && y1 < y2+h2 && y1+h1 > y2
}

// distinctSorted collects the distinct non-empty projections, sorted so the
// emitted sequence is stable across runs.
func distinctSorted[T any](items []T, project func(T) string) []string {
	seen := map[string]struct{}{}
	for _, item := range items {
		if v := project(item); v != "" {
			seen[v] = struct{}{}
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}
