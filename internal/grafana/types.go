package grafana

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/copystructure"
)

// Document is a raw dashboard definition as returned by the Grafana API.
// Mutating operations work on this form so that backend-specific fields are
// passed through untouched.
type Document map[string]any

// FromAny converts an arbitrarily decoded JSON value (e.g. the OpenAPI
// client's dashboard payload) into a Document.
func FromAny(v any) (Document, error) {
	if v == nil {
		return nil, fmt.Errorf("empty dashboard payload")
	}
	if m, ok := v.(map[string]any); ok {
		return Document(m), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding dashboard payload: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding dashboard payload: %w", err)
	}
	return doc, nil
}

// Clone returns a deep copy of the document, independent of the original.
func (d Document) Clone() (Document, error) {
	if d == nil {
		return Document{}, nil
	}
	dup, err := copystructure.Copy(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("copying dashboard document: %w", err)
	}
	return Document(dup.(map[string]any)), nil
}

func (d Document) str(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

func (d Document) UID() string   { return d.str("uid") }
func (d Document) Title() string { return d.str("title") }

func (d Document) SetUID(uid string)     { d["uid"] = uid }
func (d Document) SetTitle(title string) { d["title"] = title }

// Tags returns the dashboard tags. Anything that is not a list of strings is
// treated as no tags, matching how Grafana itself ignores malformed tags.
func (d Document) Tags() []string {
	raw, ok := d["tags"].([]any)
	if !ok {
		if tags, ok := d["tags"].([]string); ok {
			return tags
		}
		return nil
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

func (d Document) SetTags(tags []string) { d["tags"] = tags }

// Version returns the document version field if present.
func (d Document) Version() (int64, bool) {
	switch v := d["version"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

func (d Document) SetVersion(version int64) { d["version"] = version }

// Typed view of a dashboard document. Used by the read-only engines
// (inspector, validator, differ); the write path keeps the raw Document.

type GridPos struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Target is one panel query. Datasource is either a structured {uid,type}
// reference or a legacy bare name; backend-specific query fields beyond the
// ones named here are not represented and never written back.
type Target struct {
	RefID      string `json:"refId"`
	Datasource any    `json:"datasource,omitempty"`
	Hide       bool   `json:"hide,omitempty"`
	QueryType  string `json:"queryType,omitempty"`
	Expr       string `json:"expr,omitempty"`
	RawSQL     string `json:"rawSql,omitempty"`
	Query      any    `json:"query,omitempty"`
	Format     string `json:"format,omitempty"`
}

type Panel struct {
	ID          *int64   `json:"id"`
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Datasource  any      `json:"datasource,omitempty"`
	GridPos     *GridPos `json:"gridPos,omitempty"`
	Targets     []Target `json:"targets,omitempty"`
}

type Variable struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Label      string         `json:"label,omitempty"`
	Datasource any            `json:"datasource,omitempty"`
	Query      any            `json:"query,omitempty"`
	Multi      bool           `json:"multi,omitempty"`
	IncludeAll bool           `json:"includeAll,omitempty"`
	Current    map[string]any `json:"current,omitempty"`
}

type Annotation struct {
	Name       string `json:"name,omitempty"`
	Datasource any    `json:"datasource,omitempty"`
}

type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Dashboard struct {
	ID          int64    `json:"id,omitempty"`
	UID         string   `json:"uid"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Editable    any      `json:"editable,omitempty"`
	Refresh     any      `json:"refresh,omitempty"` // interval string or false
	Panels      []*Panel `json:"panels"`
	Templating  struct {
		List []Variable `json:"list"`
	} `json:"templating"`
	Annotations struct {
		List []Annotation `json:"list"`
	} `json:"annotations"`
	Time     TimeRange `json:"time"`
	Timezone string    `json:"timezone,omitempty"`
	Version  int64     `json:"version,omitempty"`
}

// Decode converts the raw document into the typed view via a JSON round-trip,
// the same way the dashboard payload is decoded off the API client.
func (d Document) Decode() (*Dashboard, error) {
	raw, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("encoding dashboard: %w", err)
	}
	var dashboard Dashboard
	if err := json.Unmarshal(raw, &dashboard); err != nil {
		return nil, fmt.Errorf("decoding dashboard: %w", err)
	}
	return &dashboard, nil
}

// DatasourceRef normalizes a panel/variable datasource field. It returns the
// uid for structured references, the bare name for legacy references, and
// ok=false when no datasource is set.
func DatasourceRef(v any) (uid string, legacy string, ok bool) {
	switch ds := v.(type) {
	case nil:
		return "", "", false
	case string:
		return "", ds, ds != ""
	case map[string]any:
		if u, _ := ds["uid"].(string); u != "" {
			return u, "", true
		}
		return "", "", false
	}
	return "", "", false
}
