package governance

import (
	"fmt"
	"reflect"
	"sort"

	"grafana-steward/internal/grafana"
)

// Difference is one field-level divergence between two dashboards.
type Difference struct {
	Category    string `json:"category"`
	Field       string `json:"field"`
	ValueA      any    `json:"value_a"`
	ValueB      any    `json:"value_b"`
	Description string `json:"description"`
}

type ComparisonSide struct {
	UID     string `json:"uid"`
	Title   string `json:"title"`
	Cluster string `json:"cluster"`
	Version int64  `json:"version"`
	Updated string `json:"updated,omitempty"`
}

type ComparisonSummary struct {
	TotalDifferences int      `json:"total_differences"`
	Categories       []string `json:"categories"`
	PanelsA          int      `json:"panels_a"`
	PanelsB          int      `json:"panels_b"`
	VariablesA       int      `json:"variables_a"`
	VariablesB       int      `json:"variables_b"`
	Identical        bool     `json:"dashboards_identical"`
}

type ComparisonReport struct {
	DashboardA  ComparisonSide    `json:"dashboard_a"`
	DashboardB  ComparisonSide    `json:"dashboard_b"`
	Differences []Difference      `json:"differences"`
	Summary     ComparisonSummary `json:"summary"`
}

func (r *ComparisonReport) record(category, field string, valueA, valueB any, description string) {
	if description == "" {
		description = fmt.Sprintf("Field %q differs", field)
	}
	r.Differences = append(r.Differences, Difference{
		Category:    category,
		Field:       field,
		ValueA:      valueA,
		ValueB:      valueB,
		Description: description,
	})
}

// CompareInput is one side of a comparison.
type CompareInput struct {
	Cluster string
	Doc     grafana.Document
	Meta    *grafana.Meta
}

// Compare computes the field-level structural diff between two dashboard
// documents. The output sequence is deterministic for fixed inputs: fields in
// fixed order, variables and panels in side-A document order (then side-B for
// B-only entries), category summary sorted.
func Compare(a, b CompareInput) (*ComparisonReport, error) {
	dashA, err := a.Doc.Decode()
	if err != nil {
		return nil, fmt.Errorf("dashboard A: %w", err)
	}
	dashB, err := b.Doc.Decode()
	if err != nil {
		return nil, fmt.Errorf("dashboard B: %w", err)
	}

	report := &ComparisonReport{
		DashboardA:  side(a, dashA),
		DashboardB:  side(b, dashB),
		Differences: []Difference{},
	}

	compareBasic(report, dashA, dashB)
	compareTime(report, dashA, dashB)
	compareVariables(report, dashA, dashB)
	comparePanels(report, dashA, dashB)

	categories := map[string]struct{}{}
	for _, diff := range report.Differences {
		categories[diff.Category] = struct{}{}
	}
	sorted := make([]string, 0, len(categories))
	for c := range categories {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)

	report.Summary = ComparisonSummary{
		TotalDifferences: len(report.Differences),
		Categories:       sorted,
		PanelsA:          len(dashA.Panels),
		PanelsB:          len(dashB.Panels),
		VariablesA:       len(dashA.Templating.List),
		VariablesB:       len(dashB.Templating.List),
		Identical:        len(report.Differences) == 0,
	}
	return report, nil
}

func side(in CompareInput, d *grafana.Dashboard) ComparisonSide {
	s := ComparisonSide{
		UID:     d.UID,
		Title:   d.Title,
		Cluster: in.Cluster,
		Version: d.Version,
	}
	if in.Meta != nil {
		s.Updated = in.Meta.Updated
	}
	return s
}

func compareBasic(report *ComparisonReport, a, b *grafana.Dashboard) {
	if a.Title != b.Title {
		report.record("basic", "title", a.Title, b.Title, "")
	}
	if a.Description != b.Description {
		report.record("basic", "description", a.Description, b.Description, "")
	}
	if !reflect.DeepEqual(sortedTags(a.Tags), sortedTags(b.Tags)) {
		report.record("basic", "tags", sortedTags(a.Tags), sortedTags(b.Tags), "")
	}
	if !reflect.DeepEqual(a.Editable, b.Editable) {
		report.record("basic", "editable", a.Editable, b.Editable, "")
	}
	if !reflect.DeepEqual(a.Refresh, b.Refresh) {
		report.record("basic", "refresh", a.Refresh, b.Refresh, "")
	}
}

// sortedTags normalizes a tag set for comparison; tags are a set, and any
// field drawn from a set is sorted before emission.
func sortedTags(tags []string) []string {
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	return sorted
}

func compareTime(report *ComparisonReport, a, b *grafana.Dashboard) {
	if a.Time.From != b.Time.From {
		report.record("time", "from", a.Time.From, b.Time.From, "")
	}
	if a.Time.To != b.Time.To {
		report.record("time", "to", a.Time.To, b.Time.To, "")
	}

	tzA, tzB := a.Timezone, b.Timezone
	if tzA == "" {
		tzA = "browser"
	}
	if tzB == "" {
		tzB = "browser"
	}
	if tzA != tzB {
		report.record("time", "timezone", tzA, tzB, "")
	}
}

func compareVariables(report *ComparisonReport, a, b *grafana.Dashboard) {
	varsA := map[string]grafana.Variable{}
	for _, v := range a.Templating.List {
		varsA[v.Name] = v
	}
	varsB := map[string]grafana.Variable{}
	for _, v := range b.Templating.List {
		varsB[v.Name] = v
	}

	for _, v := range a.Templating.List {
		if _, ok := varsB[v.Name]; !ok {
			report.record("variables", "variable_"+v.Name, "present", "missing",
				fmt.Sprintf("Variable %q exists only in dashboard A", v.Name))
		}
	}
	for _, v := range b.Templating.List {
		if _, ok := varsA[v.Name]; !ok {
			report.record("variables", "variable_"+v.Name, "missing", "present",
				fmt.Sprintf("Variable %q exists only in dashboard B", v.Name))
		}
	}

	for _, va := range a.Templating.List {
		vb, ok := varsB[va.Name]
		if !ok {
			continue
		}
		varFields := []struct {
			name   string
			av, bv any
		}{
			{"type", va.Type, vb.Type},
			{"query", va.Query, vb.Query},
			{"datasource", va.Datasource, vb.Datasource},
			{"multi", va.Multi, vb.Multi},
			{"includeAll", va.IncludeAll, vb.IncludeAll},
		}
		for _, f := range varFields {
			if !reflect.DeepEqual(f.av, f.bv) {
				report.record("variables",
					fmt.Sprintf("variable_%s_%s", va.Name, f.name), f.av, f.bv,
					fmt.Sprintf("Variable %q %s differs", va.Name, f.name))
			}
		}
	}
}

func comparePanels(report *ComparisonReport, a, b *grafana.Dashboard) {
	panelsA := map[int64]*grafana.Panel{}
	for _, p := range a.Panels {
		if p != nil && p.ID != nil {
			panelsA[*p.ID] = p
		}
	}
	panelsB := map[int64]*grafana.Panel{}
	for _, p := range b.Panels {
		if p != nil && p.ID != nil {
			panelsB[*p.ID] = p
		}
	}

	for _, p := range a.Panels {
		if p == nil || p.ID == nil {
			continue
		}
		if _, ok := panelsB[*p.ID]; !ok {
			report.record("panels", fmt.Sprintf("panel_%d", *p.ID), "present", "missing",
				fmt.Sprintf("Panel %q (id %d) exists only in dashboard A", panelLabel(p), *p.ID))
		}
	}
	for _, p := range b.Panels {
		if p == nil || p.ID == nil {
			continue
		}
		if _, ok := panelsA[*p.ID]; !ok {
			report.record("panels", fmt.Sprintf("panel_%d", *p.ID), "missing", "present",
				fmt.Sprintf("Panel %q (id %d) exists only in dashboard B", panelLabel(p), *p.ID))
		}
	}

	for _, pa := range a.Panels {
		if pa == nil || pa.ID == nil {
			continue
		}
		pb, ok := panelsB[*pa.ID]
		if !ok {
			continue
		}
		id := *pa.ID
		label := panelLabel(pa)

		panelFields := []struct {
			name   string
			av, bv string
		}{
			{"title", pa.Title, pb.Title},
			{"type", pa.Type, pb.Type},
			{"description", pa.Description, pb.Description},
		}
		for _, f := range panelFields {
			if f.av != f.bv {
				report.record("panels",
					fmt.Sprintf("panel_%d_%s", id, f.name), f.av, f.bv,
					fmt.Sprintf("Panel %q %s differs", label, f.name))
			}
		}

		gridA, gridB := pa.GridPos, pb.GridPos
		gridFields := []struct {
			name   string
			av, bv any
		}{
			{"x", gridField(gridA, func(g *grafana.GridPos) int { return g.X }), gridField(gridB, func(g *grafana.GridPos) int { return g.X })},
			{"y", gridField(gridA, func(g *grafana.GridPos) int { return g.Y }), gridField(gridB, func(g *grafana.GridPos) int { return g.Y })},
			{"w", gridField(gridA, func(g *grafana.GridPos) int { return g.W }), gridField(gridB, func(g *grafana.GridPos) int { return g.W })},
			{"h", gridField(gridA, func(g *grafana.GridPos) int { return g.H }), gridField(gridB, func(g *grafana.GridPos) int { return g.H })},
		}
		for _, f := range gridFields {
			if !reflect.DeepEqual(f.av, f.bv) {
				report.record("layout",
					fmt.Sprintf("panel_%d_grid_%s", id, f.name), f.av, f.bv,
					fmt.Sprintf("Panel %q grid position %s differs", label, f.name))
			}
		}

		if !reflect.DeepEqual(pa.Datasource, pb.Datasource) {
			report.record("datasource",
				fmt.Sprintf("panel_%d_datasource", id), pa.Datasource, pb.Datasource,
				fmt.Sprintf("Panel %q datasource differs", label))
		}

		if len(pa.Targets) != len(pb.Targets) {
			report.record("queries",
				fmt.Sprintf("panel_%d_query_count", id), len(pa.Targets), len(pb.Targets),
				fmt.Sprintf("Panel %q has a different number of queries", label))
		}
	}
}

func panelLabel(p *grafana.Panel) string {
	if p.Title != "" {
		return p.Title
	}
	if p.ID != nil {
		return fmt.Sprintf("Panel %d", *p.ID)
	}
	return "Panel"
}

func gridField(g *grafana.GridPos, pick func(*grafana.GridPos) int) any {
	if g == nil {
		return nil
	}
	return pick(g)
}
