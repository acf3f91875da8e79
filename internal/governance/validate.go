package governance

import (
	"fmt"
	"strconv"

	"grafana-steward/internal/grafana"

	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

const (
	LevelError   = "ERROR"
	LevelWarning = "WARNING"
	LevelInfo    = "INFO"
)

var validVariableTypes = []string{
	"query", "custom", "constant", "datasource", "interval", "textbox", "adhoc",
}

// Issue is one validation finding.
type Issue struct {
	Level    string `json:"level"`
	Category string `json:"category"`
	Message  string `json:"message"`
	PanelID  string `json:"panel_id,omitempty"`
}

type ValidationSummary struct {
	TotalPanels    int    `json:"total_panels"`
	TotalVariables int    `json:"total_variables"`
	TotalIssues    int    `json:"total_issues"`
	TotalWarnings  int    `json:"total_warnings"`
	TotalInfo      int    `json:"total_info"`
	Status         string `json:"validation_status"`
}

type ValidationReport struct {
	DashboardUID   string            `json:"dashboard_uid"`
	DashboardTitle string            `json:"dashboard_title"`
	Status         string            `json:"validation_status"`
	Issues         []Issue           `json:"issues"`
	Warnings       []Issue           `json:"warnings"`
	Info           []Issue           `json:"info"`
	Summary        ValidationSummary `json:"summary"`
}

func (r *ValidationReport) add(level, category, message, panelID string) {
	issue := Issue{Level: level, Category: category, Message: message, PanelID: panelID}
	switch level {
	case LevelError:
		r.Issues = append(r.Issues, issue)
		r.Status = StatusFail
	case LevelWarning:
		r.Warnings = append(r.Warnings, issue)
	default:
		r.Info = append(r.Info, issue)
	}
}

// Validate applies the full rule set to a dashboard document. Every rule runs
// unconditionally so one pass surfaces the complete issue set; the status is
// FAIL iff at least one ERROR was produced.
func Validate(doc grafana.Document) (*ValidationReport, error) {
	dashboard, err := doc.Decode()
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{
		DashboardUID:   dashboard.UID,
		DashboardTitle: dashboard.Title,
		Status:         StatusPass,
		Issues:         []Issue{},
		Warnings:       []Issue{},
		Info:           []Issue{},
	}

	validateSchema(report, dashboard)
	validateTime(report, dashboard)
	validatePanels(report, dashboard)
	validateVariables(report, dashboard)
	validateBestPractices(report, dashboard)

	report.Summary = ValidationSummary{
		TotalPanels:    len(dashboard.Panels),
		TotalVariables: len(dashboard.Templating.List),
		TotalIssues:    len(report.Issues),
		TotalWarnings:  len(report.Warnings),
		TotalInfo:      len(report.Info),
		Status:         report.Status,
	}
	return report, nil
}

func validateSchema(report *ValidationReport, d *grafana.Dashboard) {
	if d.UID == "" {
		report.add(LevelError, "schema", "Required field 'uid' is missing or empty", "")
	} else if len(d.UID) > 40 {
		report.add(LevelError, "schema",
			fmt.Sprintf("Dashboard uid %q length must be between 1 and 40 characters", d.UID), "")
	}

	if d.Title == "" {
		report.add(LevelError, "schema", "Required field 'title' is missing or empty", "")
	} else if len(d.Title) > 255 {
		report.add(LevelWarning, "schema",
			fmt.Sprintf("Dashboard title is very long (%d characters)", len(d.Title)), "")
	}

	if len(d.Panels) == 0 {
		report.add(LevelError, "schema", "Required field 'panels' is missing or empty", "")
	}
}

func validateTime(report *ValidationReport, d *grafana.Dashboard) {
	if d.Time.From == "" || d.Time.To == "" {
		report.add(LevelWarning, "time", "Time range (from/to) should be specified", "")
	}
}

func validatePanels(report *ValidationReport, d *grafana.Dashboard) {
	if len(d.Panels) == 0 {
		report.add(LevelWarning, "content", "Dashboard has no panels", "")
	}

	type rect struct {
		x, y, w, h int
		title      string
	}
	var placed []rect
	seenIDs := map[int64]struct{}{}

	for _, panel := range d.Panels {
		if panel == nil {
			continue
		}

		panelTitle := panel.Title
		panelID := ""
		if panel.ID != nil {
			panelID = strconv.FormatInt(*panel.ID, 10)
			if panelTitle == "" {
				panelTitle = "Panel " + panelID
			}
		}

		if panel.ID == nil {
			report.add(LevelError, "panel",
				fmt.Sprintf("Panel %q is missing id", panelTitle), "")
		} else if _, dup := seenIDs[*panel.ID]; dup {
			report.add(LevelError, "panel",
				fmt.Sprintf("Duplicate panel id: %d", *panel.ID), panelID)
		} else {
			seenIDs[*panel.ID] = struct{}{}
		}

		if panel.Type == "" {
			report.add(LevelError, "panel",
				fmt.Sprintf("Panel %q is missing type", panelTitle), panelID)
		}

		if panel.GridPos == nil {
			report.add(LevelWarning, "layout",
				fmt.Sprintf("Panel %q has no grid position", panelTitle), panelID)
		} else {
			gp := panel.GridPos
			if gp.W <= 0 || gp.W > 24 {
				report.add(LevelError, "layout",
					fmt.Sprintf("Panel %q has invalid width: %d", panelTitle, gp.W), panelID)
			}
			if gp.H <= 0 {
				report.add(LevelError, "layout",
					fmt.Sprintf("Panel %q has invalid height: %d", panelTitle, gp.H), panelID)
			}
			if gp.X < 0 || gp.X >= 24 {
				report.add(LevelError, "layout",
					fmt.Sprintf("Panel %q has invalid x position: %d", panelTitle, gp.X), panelID)
			}
			if gp.Y < 0 {
				report.add(LevelError, "layout",
					fmt.Sprintf("Panel %q has invalid y position: %d", panelTitle, gp.Y), panelID)
			}

			// Full pairwise test against every previously validated panel,
			// stable in document order.
			for _, prev := range placed {
				if rectsOverlap(gp.X, gp.Y, gp.W, gp.H, prev.x, prev.y, prev.w, prev.h) {
					report.add(LevelError, "layout",
						fmt.Sprintf("Panel %q overlaps with %q", panelTitle, prev.title), panelID)
				}
			}
			placed = append(placed, rect{x: gp.X, y: gp.Y, w: gp.W, h: gp.H, title: panelTitle})
		}

		if panel.Datasource == nil {
			report.add(LevelWarning, "datasource",
				fmt.Sprintf("Panel %q has no datasource", panelTitle), panelID)
		}

		validateTargets(report, panel, panelTitle, panelID)
	}
}

func validateTargets(report *ValidationReport, panel *grafana.Panel, panelTitle, panelID string) {
	if len(panel.Targets) == 0 {
		report.add(LevelWarning, "query",
			fmt.Sprintf("Panel %q has no queries", panelTitle), panelID)
		return
	}

	seenRefIDs := map[string]struct{}{}
	for _, target := range panel.Targets {
		if target.RefID == "" {
			report.add(LevelError, "query",
				fmt.Sprintf("Query in panel %q is missing refId", panelTitle), panelID)
		} else if _, dup := seenRefIDs[target.RefID]; dup {
			report.add(LevelError, "query",
				fmt.Sprintf("Duplicate refId %q in panel %q", target.RefID, panelTitle), panelID)
		} else {
			seenRefIDs[target.RefID] = struct{}{}
		}

		lintRawSQL(report, target, panelTitle, panelID)
	}
}

// lintRawSQL applies static analysis to raw SQL targets: unparseable SQL is
// worth a warning before it reaches the datasource, and unbounded SELECT *
// projections are a known dashboard performance trap.
func lintRawSQL(report *ValidationReport, target grafana.Target, panelTitle, panelID string) {
	if target.RawSQL == "" {
		return
	}

	raw, err := pg_query.ParseToJSON(target.RawSQL)
	if err != nil {
		report.add(LevelWarning, "query",
			fmt.Sprintf("Query %q in panel %q is not parseable SQL: %v",
				target.RefID, panelTitle, err), panelID)
		return
	}

	for _, stmt := range gjson.Get(raw, "stmts.#.stmt").Array() {
		targets := stmt.Get("SelectStmt.targetList.#.ResTarget.val.ColumnRef.fields")
		for _, fields := range targets.Array() {
			if fields.Get("#.A_Star").Exists() && len(fields.Get("#.A_Star").Array()) > 0 {
				report.add(LevelInfo, "query",
					fmt.Sprintf("Query %q in panel %q selects *; name the needed columns",
						target.RefID, panelTitle), panelID)
				return
			}
		}
	}
}

func validateVariables(report *ValidationReport, d *grafana.Dashboard) {
	seen := map[string]struct{}{}
	for _, variable := range d.Templating.List {
		if variable.Name == "" {
			report.add(LevelError, "variable", "Template variable is missing name", "")
		} else if _, dup := seen[variable.Name]; dup {
			report.add(LevelError, "variable",
				fmt.Sprintf("Duplicate variable name: %s", variable.Name), "")
		} else {
			seen[variable.Name] = struct{}{}
		}

		if !lo.Contains(validVariableTypes, variable.Type) {
			report.add(LevelWarning, "variable",
				fmt.Sprintf("Variable %q has unknown type: %s", variable.Name, variable.Type), "")
		}
	}
}

func validateBestPractices(report *ValidationReport, d *grafana.Dashboard) {
	if len(d.Panels) > 30 {
		report.add(LevelInfo, "performance",
			fmt.Sprintf("Dashboard has many panels (%d), consider splitting into multiple dashboards",
				len(d.Panels)), "")
	}

	if refresh, ok := d.Refresh.(string); ok && (refresh == "5s" || refresh == "10s") {
		report.add(LevelWarning, "performance",
			fmt.Sprintf("Very frequent refresh rate (%s) may impact backend load", refresh), "")
	}

	for _, annotation := range d.Annotations.List {
		if annotation.Datasource == nil {
			report.add(LevelWarning, "annotation", "Annotation is missing datasource", "")
		}
	}
}
