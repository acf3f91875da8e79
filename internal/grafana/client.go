package grafana

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grafana-steward/pkg/config"

	"github.com/go-openapi/strfmt"
	goapi "github.com/grafana/grafana-openapi-client-go/client"
	"github.com/grafana/grafana-openapi-client-go/client/folders"
	"github.com/grafana/grafana-openapi-client-go/client/search"
	"github.com/grafana/grafana-openapi-client-go/models"
)

// Meta is the dashboard metadata accompanying a get.
type Meta struct {
	Version     int64  `json:"version"`
	FolderUID   string `json:"folderUid"`
	FolderTitle string `json:"folderTitle"`
	Slug        string `json:"slug,omitempty"`
	URL         string `json:"url,omitempty"`
	Created     string `json:"created,omitempty"`
	CreatedBy   string `json:"createdBy,omitempty"`
	Updated     string `json:"updated,omitempty"`
	UpdatedBy   string `json:"updatedBy,omitempty"`
}

// WriteResult is the backend acknowledgement of a dashboard create/update.
type WriteResult struct {
	ID      int64  `json:"id"`
	UID     string `json:"uid"`
	URL     string `json:"url"`
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

type SearchHit struct {
	UID         string   `json:"uid"`
	Title       string   `json:"title"`
	URL         string   `json:"url,omitempty"`
	Type        string   `json:"type"`
	Tags        []string `json:"tags,omitempty"`
	IsStarred   bool     `json:"isStarred"`
	FolderUID   string   `json:"folderUid,omitempty"`
	FolderTitle string   `json:"folderTitle,omitempty"`
}

type SearchQuery struct {
	Query         string
	Tags          []string
	Starred       bool
	FolderUIDs    []string
	DashboardUIDs []string
	DashboardIDs  []int64
	Type          string
	Limit         int64
	Page          int64
}

type Datasource struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
	IsDefault bool   `json:"isDefault"`
	Access    string `json:"access,omitempty"`
	ReadOnly  bool   `json:"readOnly"`
}

type Folder struct {
	UID       string `json:"uid"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	ParentUID string `json:"parentUid,omitempty"`
	Version   int64  `json:"version,omitempty"`
	Created   string `json:"created,omitempty"`
	Updated   string `json:"updated,omitempty"`
	CanSave   bool   `json:"canSave"`
	CanEdit   bool   `json:"canEdit"`
	CanAdmin  bool   `json:"canAdmin"`
}

type Snapshot struct {
	Key       string `json:"key"`
	DeleteKey string `json:"deleteKey,omitempty"`
	URL       string `json:"url"`
	DeleteURL string `json:"deleteUrl,omitempty"`
}

type Health struct {
	Database string `json:"database,omitempty"`
	Version  string `json:"version,omitempty"`
	Commit   string `json:"commit,omitempty"`
}

// Client talks to one Grafana cluster. It is built per operation and carries
// no state beyond the transport.
type Client struct {
	cluster string
	api     *goapi.GrafanaHTTPAPI
	httpc   *http.Client
	baseURL string
	token   string
}

// NewClient builds a client for the given cluster endpoint.
func NewClient(cluster string, cc config.ClusterConfig) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(cc.URL, "/"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("cluster %q has an invalid url %q", cluster, cc.URL)
	}

	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}

	cfg := &goapi.TransportConfig{
		Host:     u.Host,
		BasePath: strings.TrimSuffix(u.Path, "/") + "/api",
		Schemes:  []string{scheme},
		// A failed call fails the whole operation; retrying is left to the
		// caller's backend, not this client.
		NumRetries:  0,
		HTTPHeaders: map[string]string{},
	}
	if cc.Token != "" {
		cfg.APIKey = cc.Token
	}

	return &Client{
		cluster: cluster,
		api:     goapi.NewHTTPClientWithConfig(strfmt.Default, cfg),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(cc.URL, "/"),
		token:   cc.Token,
	}, nil
}

// Cluster returns the cluster name this client was built for.
func (c *Client) Cluster() string { return c.cluster }

// Close releases the client. The underlying transports are connection-pooled
// http clients with nothing to tear down, but the store contract requires a
// scoped release on every exit path.
func (c *Client) Close() error {
	c.httpc.CloseIdleConnections()
	return nil
}

func (c *Client) GetDashboard(uid string) (Document, *Meta, error) {
	resp, err := c.api.Dashboards.GetDashboardByUID(uid)
	if err != nil {
		return nil, nil, err
	}
	payload := resp.GetPayload()
	if payload == nil {
		return nil, nil, fmt.Errorf("dashboard %q: empty response", uid)
	}

	doc, err := FromAny(payload.Dashboard)
	if err != nil {
		return nil, nil, fmt.Errorf("dashboard %q: %w", uid, err)
	}

	meta := &Meta{}
	if version, ok := doc.Version(); ok {
		meta.Version = version
	}
	if m := payload.Meta; m != nil {
		meta.FolderUID = m.FolderUID
		meta.FolderTitle = m.FolderTitle
		meta.Slug = m.Slug
		meta.URL = m.URL
		meta.Created = m.Created.String()
		meta.CreatedBy = m.CreatedBy
		meta.Updated = m.Updated.String()
		meta.UpdatedBy = m.UpdatedBy
	}
	return doc, meta, nil
}

func (c *Client) saveDashboard(doc Document, folderUID string, overwrite bool, message string) (*WriteResult, error) {
	body := &models.SaveDashboardCommand{
		Dashboard: map[string]any(doc),
		Overwrite: overwrite,
		Message:   message,
	}
	if folderUID != "" {
		body.FolderUID = folderUID
	}

	resp, err := c.api.Dashboards.PostDashboard(body)
	if err != nil {
		return nil, err
	}
	payload := resp.GetPayload()
	if payload == nil {
		return nil, fmt.Errorf("dashboard save: empty response")
	}
	return &WriteResult{
		ID:      derefInt64(payload.ID),
		UID:     derefString(payload.UID),
		URL:     derefString(payload.URL),
		Status:  derefString(payload.Status),
		Version: derefInt64(payload.Version),
	}, nil
}

func (c *Client) CreateDashboard(doc Document, folderUID string) (*WriteResult, error) {
	return c.saveDashboard(doc, folderUID, false, "Created via grafana-steward")
}

func (c *Client) UpdateDashboard(doc Document, folderUID string) (*WriteResult, error) {
	return c.saveDashboard(doc, folderUID, true, "Updated via grafana-steward")
}

func (c *Client) DeleteDashboard(uid string) error {
	_, err := c.api.Dashboards.DeleteDashboardByUID(uid)
	return err
}

func (c *Client) Search(q SearchQuery) ([]SearchHit, error) {
	params := search.NewSearchParams().WithLimit(&q.Limit).WithPage(&q.Page)
	if q.Query != "" {
		params = params.WithQuery(&q.Query)
	}
	if len(q.Tags) > 0 {
		params = params.WithTag(q.Tags)
	}
	if q.Starred {
		params = params.WithStarred(&q.Starred)
	}
	if len(q.FolderUIDs) > 0 {
		params = params.WithFolderUIDs(q.FolderUIDs)
	}
	if len(q.DashboardUIDs) > 0 {
		params = params.WithDashboardUIDs(q.DashboardUIDs)
	}
	if len(q.DashboardIDs) > 0 {
		params = params.WithDashboardIds(q.DashboardIDs)
	}
	if q.Type != "" {
		params = params.WithType(&q.Type)
	}

	resp, err := c.api.Search.Search(params)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(resp.GetPayload()))
	for _, hit := range resp.GetPayload() {
		if hit == nil {
			continue
		}
		hits = append(hits, SearchHit{
			UID:         hit.UID,
			Title:       hit.Title,
			URL:         hit.URL,
			Type:        string(hit.Type),
			Tags:        hit.Tags,
			IsStarred:   hit.IsStarred,
			FolderUID:   hit.FolderUID,
			FolderTitle: hit.FolderTitle,
		})
	}
	return hits, nil
}

func (c *Client) ListDatasources() ([]Datasource, error) {
	resp, err := c.api.Datasources.GetDataSources()
	if err != nil {
		return nil, err
	}

	datasources := make([]Datasource, 0, len(resp.GetPayload()))
	for _, ds := range resp.GetPayload() {
		if ds == nil {
			continue
		}
		datasources = append(datasources, Datasource{
			UID:       ds.UID,
			Name:      ds.Name,
			Type:      ds.Type,
			URL:       ds.URL,
			IsDefault: ds.IsDefault,
			Access:    string(ds.Access),
			ReadOnly:  ds.ReadOnly,
		})
	}
	return datasources, nil
}

func (c *Client) ListFolders(parentUID string) ([]Folder, error) {
	params := folders.NewGetFoldersParams()
	if parentUID != "" {
		params = params.WithParentUID(&parentUID)
	}

	resp, err := c.api.Folders.GetFolders(params)
	if err != nil {
		return nil, err
	}

	result := make([]Folder, 0, len(resp.GetPayload()))
	for _, f := range resp.GetPayload() {
		if f == nil {
			continue
		}
		result = append(result, Folder{
			UID:       f.UID,
			Title:     f.Title,
			ParentUID: f.ParentUID,
		})
	}
	return result, nil
}

func (c *Client) GetFolder(uid string) (*Folder, error) {
	resp, err := c.api.Folders.GetFolderByUID(uid)
	if err != nil {
		return nil, err
	}
	f := resp.GetPayload()
	if f == nil {
		return nil, fmt.Errorf("folder %q: empty response", uid)
	}
	return &Folder{
		UID:       f.UID,
		Title:     f.Title,
		URL:       f.URL,
		ParentUID: f.ParentUID,
		Version:   f.Version,
		Created:   f.Created.String(),
		Updated:   f.Updated.String(),
		CanSave:   f.CanSave,
		CanEdit:   f.CanEdit,
		CanAdmin:  f.CanAdmin,
	}, nil
}

func (c *Client) CreateFolder(title, parentUID string) (*Folder, error) {
	body := &models.CreateFolderCommand{Title: title}
	if parentUID != "" {
		body.ParentUID = parentUID
	}
	resp, err := c.api.Folders.CreateFolder(body)
	if err != nil {
		return nil, err
	}
	f := resp.GetPayload()
	if f == nil {
		return nil, fmt.Errorf("folder create: empty response")
	}
	return &Folder{UID: f.UID, Title: f.Title, URL: f.URL, ParentUID: f.ParentUID}, nil
}

// UpdateFolder renames a folder and, when parentUID is set, moves it. The
// rename and the move are two backend calls; a move failure after a
// successful rename is reported as-is.
func (c *Client) UpdateFolder(uid, title, parentUID string) (*Folder, error) {
	overwrite := true
	resp, err := c.api.Folders.UpdateFolder(uid, &models.UpdateFolderCommand{
		Title:     title,
		Overwrite: overwrite,
	})
	if err != nil {
		return nil, err
	}

	f := resp.GetPayload()
	folder := &Folder{UID: uid, Title: title}
	if f != nil {
		folder = &Folder{UID: f.UID, Title: f.Title, URL: f.URL, ParentUID: f.ParentUID, Version: f.Version}
	}

	if parentUID != "" {
		moved, err := c.api.Folders.MoveFolder(uid, &models.MoveFolderCommand{ParentUID: parentUID})
		if err != nil {
			return folder, fmt.Errorf("folder %q renamed but not moved: %w", uid, err)
		}
		if m := moved.GetPayload(); m != nil {
			folder.ParentUID = m.ParentUID
		}
	}
	return folder, nil
}

func (c *Client) DeleteFolder(uid string, forceDeleteRules bool) error {
	params := folders.NewDeleteFolderParams().WithFolderUID(uid)
	if forceDeleteRules {
		params = params.WithForceDeleteRules(&forceDeleteRules)
	}
	_, err := c.api.Folders.DeleteFolder(params)
	return err
}

func (c *Client) CreateSnapshot(doc Document, name string, expiresSec int64) (*Snapshot, error) {
	body := &models.CreateDashboardSnapshotCommand{
		Dashboard: &models.Unstructured{Object: map[string]any(doc)},
		Name:      name,
		Expires:   expiresSec,
	}
	resp, err := c.api.Snapshots.CreateDashboardSnapshot(body)
	if err != nil {
		return nil, err
	}
	p := resp.GetPayload()
	if p == nil {
		return nil, fmt.Errorf("snapshot create: empty response")
	}
	return &Snapshot{
		Key:       p.Key,
		DeleteKey: p.DeleteKey,
		URL:       p.URL,
		DeleteURL: p.DeleteURL,
	}, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt64(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
