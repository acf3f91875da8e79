package governance

import (
	"errors"
	"testing"

	"grafana-steward/internal/grafana"
	"grafana-steward/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory dashboard store shared across the handles a test
// service builds.
type fakeStore struct {
	cluster     string
	dashboards  map[string]grafana.Document
	metas       map[string]*grafana.Meta
	datasources []grafana.Datasource
	hits        []grafana.SearchHit

	failGet         error
	failDatasources error
	failHealth      error

	closed  int
	writes  []string
	deletes []string
}

func newFakeStore(cluster string) *fakeStore {
	return &fakeStore{
		cluster:    cluster,
		dashboards: map[string]grafana.Document{},
		metas:      map[string]*grafana.Meta{},
	}
}

func (f *fakeStore) put(doc grafana.Document, meta *grafana.Meta) {
	f.dashboards[doc.UID()] = doc
	f.metas[doc.UID()] = meta
}

func (f *fakeStore) GetDashboard(uid string) (grafana.Document, *grafana.Meta, error) {
	if f.failGet != nil {
		return nil, nil, f.failGet
	}
	doc, ok := f.dashboards[uid]
	if !ok {
		return nil, nil, errors.New("dashboard not found")
	}
	return doc, f.metas[uid], nil
}

func (f *fakeStore) CreateDashboard(doc grafana.Document, folderUID string) (*grafana.WriteResult, error) {
	f.dashboards[doc.UID()] = doc
	f.writes = append(f.writes, "create:"+doc.UID())
	return &grafana.WriteResult{UID: doc.UID(), Status: "success", Version: 1}, nil
}

func (f *fakeStore) UpdateDashboard(doc grafana.Document, folderUID string) (*grafana.WriteResult, error) {
	f.dashboards[doc.UID()] = doc
	f.writes = append(f.writes, "update:"+doc.UID())
	version, _ := doc.Version()
	return &grafana.WriteResult{UID: doc.UID(), Status: "success", Version: version + 1}, nil
}

func (f *fakeStore) DeleteDashboard(uid string) error {
	delete(f.dashboards, uid)
	f.deletes = append(f.deletes, uid)
	return nil
}

func (f *fakeStore) Search(q grafana.SearchQuery) ([]grafana.SearchHit, error) {
	return f.hits, nil
}

func (f *fakeStore) ListDatasources() ([]grafana.Datasource, error) {
	if f.failDatasources != nil {
		return nil, f.failDatasources
	}
	return f.datasources, nil
}

func (f *fakeStore) ListFolders(parentUID string) ([]grafana.Folder, error) { return nil, nil }
func (f *fakeStore) GetFolder(uid string) (*grafana.Folder, error) {
	return &grafana.Folder{UID: uid, Title: "Folder"}, nil
}
func (f *fakeStore) CreateFolder(title, parentUID string) (*grafana.Folder, error) {
	return &grafana.Folder{UID: "new-folder", Title: title, ParentUID: parentUID}, nil
}
func (f *fakeStore) UpdateFolder(uid, title, parentUID string) (*grafana.Folder, error) {
	return &grafana.Folder{UID: uid, Title: title, ParentUID: parentUID}, nil
}
func (f *fakeStore) DeleteFolder(uid string, forceDeleteRules bool) error { return nil }

func (f *fakeStore) CreateSnapshot(doc grafana.Document, name string, expiresSec int64) (*grafana.Snapshot, error) {
	return &grafana.Snapshot{Key: "snap-key", URL: "http://grafana/dashboard/snapshot/snap-key"}, nil
}

func (f *fakeStore) RenderPanel(uid string, panelID int64, width, height int, from, to string) ([]byte, error) {
	return []byte("png-bytes"), nil
}

func (f *fakeStore) Health() (*grafana.Health, error) {
	if f.failHealth != nil {
		return nil, f.failHealth
	}
	return &grafana.Health{Database: "ok", Version: "11.0.0"}, nil
}

func (f *fakeStore) Close() error {
	f.closed++
	return nil
}

type fixture struct {
	svc    *Service
	stores map[string]*fakeStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		Clusters: map[string]config.ClusterConfig{
			"prod":    {URL: "http://prod:3000"},
			"staging": {URL: "http://staging:3000"},
		},
		Tags: config.TagConfig{Write: []string{"managed"}},
	}
	require.NoError(t, cfg.Validate())

	stores := map[string]*fakeStore{
		"prod":    newFakeStore("prod"),
		"staging": newFakeStore("staging"),
	}
	svc, err := NewService(cfg, func(cluster string, cc config.ClusterConfig) (Store, error) {
		return stores[cluster], nil
	})
	require.NoError(t, err)
	return &fixture{svc: svc, stores: stores}
}

func managedDoc(uid, title string) grafana.Document {
	return grafana.Document{
		"uid":    uid,
		"title":  title,
		"tags":   []any{"managed"},
		"panels": []any{},
	}
}

func TestService_UnknownClusterFailsBeforeStoreConstruction(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.ReadDashboard("nowhere", "uid-1")
	require.Error(t, err)
	var unknown *UnknownClusterError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"prod", "staging"}, unknown.Available)
	assert.Zero(t, f.stores["prod"].closed, "no store handle may be built for an unknown cluster")
}

func TestService_CreateDashboard(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.CreateDashboard("prod", grafana.Document{"title": "CPU"}, "")
	require.NoError(t, err)

	assert.Len(t, result.UID, 10, "a uid is minted when the caller provides none")
	stored := f.stores["prod"].dashboards[result.UID]
	require.NotNil(t, stored)
	assert.Contains(t, stored.Tags(), "managed", "created dashboards are stamped with the write tags")
	assert.Equal(t, 1, f.stores["prod"].closed)
}

func TestService_CreateDashboard_ConflictOnExistingUID(t *testing.T) {
	f := newFixture(t)
	f.stores["prod"].put(managedDoc("taken", "Existing"), nil)

	_, err := f.svc.CreateDashboard("prod", grafana.Document{"uid": "taken", "title": "New"}, "")
	require.Error(t, err)
	var exists *AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "taken", exists.UID)
	assert.Empty(t, f.stores["prod"].writes, "no write may happen on a uid conflict")
}

func TestService_UpdateChecksExistingTagsNotIncomingOnes(t *testing.T) {
	f := newFixture(t)
	f.stores["prod"].put(grafana.Document{
		"uid":   "foreign",
		"title": "Not Ours",
		"tags":  []any{"someone-elses"},
	}, nil)

	// The incoming document claims the write tag, but access is judged on
	// what is stored.
	_, err := f.svc.UpdateDashboard("prod", "foreign", grafana.Document{
		"title": "Hijack",
		"tags":  []any{"managed"},
	})
	require.Error(t, err)
	assert.True(t, IsAccessDenied(err))
	assert.Empty(t, f.stores["prod"].writes)
}

func TestService_UpdateCarriesVersionAndFolderForward(t *testing.T) {
	f := newFixture(t)
	existing := managedDoc("dash-1", "CPU")
	existing["version"] = float64(4)
	f.stores["prod"].put(existing, &grafana.Meta{Version: 4, FolderUID: "ops"})

	result, err := f.svc.UpdateDashboard("prod", "dash-1", grafana.Document{"title": "CPU v2"})
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.Version)
	updated := f.stores["prod"].dashboards["dash-1"]
	version, ok := updated.Version()
	require.True(t, ok)
	assert.Equal(t, int64(4), version, "the stored version is carried into the write")
	assert.Equal(t, "CPU v2", updated.Title())
}

func TestService_DeleteRequiresWriteTags(t *testing.T) {
	f := newFixture(t)
	f.stores["prod"].put(grafana.Document{"uid": "foreign", "tags": []any{}}, nil)
	f.stores["prod"].put(managedDoc("ours", "Ours"), nil)

	err := f.svc.DeleteDashboard("prod", "foreign")
	assert.True(t, IsAccessDenied(err))
	assert.Empty(t, f.stores["prod"].deletes)

	require.NoError(t, f.svc.DeleteDashboard("prod", "ours"))
	assert.Equal(t, []string{"ours"}, f.stores["prod"].deletes)
}

func TestService_ReadGateReportsNotFound(t *testing.T) {
	cfg := &config.Config{
		Clusters: map[string]config.ClusterConfig{"prod": {URL: "http://prod:3000"}},
		Tags:     config.TagConfig{Write: []string{"managed"}, Read: []string{"managed"}},
	}
	require.NoError(t, cfg.Validate())

	store := newFakeStore("prod")
	store.put(grafana.Document{"uid": "hidden", "title": "Secret", "tags": []any{}}, nil)

	svc, err := NewService(cfg, func(cluster string, cc config.ClusterConfig) (Store, error) {
		return store, nil
	})
	require.NoError(t, err)

	_, _, err = svc.ReadDashboard("prod", "hidden")
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "a read denial is indistinguishable from absence")
	assert.False(t, IsAccessDenied(err))
}

func TestService_SearchClampsAndFilters(t *testing.T) {
	cfg := &config.Config{
		Clusters: map[string]config.ClusterConfig{"prod": {URL: "http://prod:3000"}},
		Tags:     config.TagConfig{Write: []string{"managed"}, Read: []string{"managed"}},
	}
	require.NoError(t, cfg.Validate())

	store := newFakeStore("prod")
	store.hits = []grafana.SearchHit{
		{UID: "a", Type: "dash-db", Tags: []string{"managed"}},
		{UID: "b", Type: "dash-db", Tags: []string{"other"}},
		{UID: "f", Type: "dash-folder"},
	}
	svc, err := NewService(cfg, func(cluster string, cc config.ClusterConfig) (Store, error) {
		return store, nil
	})
	require.NoError(t, err)

	hits, err := svc.Search("prod", SearchOptions{Limit: 9999, Page: -3})
	require.NoError(t, err)

	uids := make([]string, 0, len(hits))
	for _, hit := range hits {
		uids = append(uids, hit.UID)
	}
	assert.Equal(t, []string{"a", "f"}, uids,
		"untagged dashboard hits are dropped, folder hits pass through")
}

func TestService_CopySameClusterMintsFreshUID(t *testing.T) {
	f := newFixture(t)
	f.stores["prod"].put(managedDoc("src-uid", "CPU"), &grafana.Meta{FolderUID: "ops"})

	result, err := f.svc.CopyDashboard("prod", "src-uid", "CPU Copy", CopyOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, "src-uid", result.UID)
	assert.Len(t, result.UID, 10)
	assert.Equal(t, "CPU Copy", f.stores["prod"].dashboards[result.UID].Title())
}

func TestService_CopyCrossClusterKeepsSourceUID(t *testing.T) {
	f := newFixture(t)
	f.stores["prod"].put(managedDoc("src-uid", "CPU"), nil)

	result, err := f.svc.CopyDashboard("prod", "src-uid", "CPU", CopyOptions{TargetCluster: "staging"})
	require.NoError(t, err)

	assert.Equal(t, "src-uid", result.UID)
	assert.Contains(t, f.stores["staging"].writes, "create:src-uid")
}

func TestService_CopyExplicitTargetUIDWins(t *testing.T) {
	f := newFixture(t)
	f.stores["prod"].put(managedDoc("src-uid", "CPU"), nil)

	result, err := f.svc.CopyDashboard("prod", "src-uid", "CPU", CopyOptions{
		TargetCluster: "staging",
		TargetUID:     "pinned",
	})
	require.NoError(t, err)
	assert.Equal(t, "pinned", result.UID)
}

func TestService_CopyOverExistingTargetUpdatesInPlace(t *testing.T) {
	f := newFixture(t)
	f.stores["prod"].put(managedDoc("src-uid", "CPU"), nil)
	target := managedDoc("src-uid", "Old CPU")
	target["version"] = float64(7)
	f.stores["staging"].put(target, nil)

	_, err := f.svc.CopyDashboard("prod", "src-uid", "CPU", CopyOptions{TargetCluster: "staging"})
	require.NoError(t, err)

	assert.Contains(t, f.stores["staging"].writes, "update:src-uid")
	version, ok := f.stores["staging"].dashboards["src-uid"].Version()
	require.True(t, ok)
	assert.Equal(t, int64(7), version, "the target's version is kept for the overwrite")
}

func TestService_CopyUnknownTargetCluster(t *testing.T) {
	f := newFixture(t)
	f.stores["prod"].put(managedDoc("src-uid", "CPU"), nil)

	_, err := f.svc.CopyDashboard("prod", "src-uid", "CPU", CopyOptions{TargetCluster: "nowhere"})
	var unknown *UnknownClusterError
	require.ErrorAs(t, err, &unknown)
	assert.Zero(t, f.stores["prod"].closed, "no source fetch before both clusters resolve")
}

func TestService_InspectSurvivesDatasourceListingFailure(t *testing.T) {
	f := newFixture(t)
	doc := managedDoc("dash-1", "CPU")
	doc["panels"] = []any{panelWithGrid(1, "CPU", 0, 0, 12, 8)}
	f.stores["prod"].put(doc, nil)
	f.stores["prod"].failDatasources = errors.New("datasource api down")

	report, err := f.svc.InspectDashboard("prod", "dash-1")
	require.NoError(t, err)
	assert.Equal(t, "unavailable", report.DatasourceResolution)
}

func TestService_SnapshotDefaultsNameAndTime(t *testing.T) {
	f := newFixture(t)
	f.stores["prod"].put(managedDoc("dash-1", "CPU"), nil)

	result, err := f.svc.SnapshotDashboard("prod", "dash-1", SnapshotOptions{ExpiresHours: 2})
	require.NoError(t, err)

	assert.Equal(t, "CPU", result.DashboardTitle)
	assert.Equal(t, "snap-key", result.Key)
	assert.Equal(t, grafana.TimeRange{From: "now-6h", To: "now"}, result.TimeRange)
	assert.Equal(t, int64(2), result.ExpiresHours)
}

func TestService_RenderClampsDimensionsAndChecksPanel(t *testing.T) {
	f := newFixture(t)
	doc := managedDoc("dash-1", "CPU")
	doc["panels"] = []any{panelWithGrid(7, "CPU", 0, 0, 12, 8)}
	f.stores["prod"].put(doc, nil)

	result, err := f.svc.RenderPanel("prod", "dash-1", 7, RenderOptions{Width: 50000, Height: 10})
	require.NoError(t, err)
	assert.Equal(t, 3000, result.Width)
	assert.Equal(t, 100, result.Height)
	assert.Equal(t, len("png-bytes"), result.ImageSizeBytes)

	_, err = f.svc.RenderPanel("prod", "dash-1", 99, RenderOptions{})
	assert.True(t, IsNotFound(err), "rendering a panel the dashboard does not contain")
}

func TestService_CheckClusterHealthReportsUnhealthy(t *testing.T) {
	f := newFixture(t)
	f.stores["prod"].failHealth = errors.New("connection refused")

	report, err := f.svc.CheckClusterHealth("prod")
	require.NoError(t, err, "an unreachable cluster is a report, not an operation failure")
	assert.Equal(t, "unhealthy", report.Status)
	assert.Equal(t, "unavailable", report.DatasourceCount)
	assert.Contains(t, report.Error, "connection refused")

	healthy, err := f.svc.CheckClusterHealth("staging")
	require.NoError(t, err)
	assert.Equal(t, "healthy", healthy.Status)
	assert.Equal(t, 0, healthy.DatasourceCount)
}

func TestService_ListClusters(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{"prod", "staging"}, f.svc.ListClusters())
}

func TestService_StoreClosedOnEveryPath(t *testing.T) {
	f := newFixture(t)
	f.stores["prod"].put(managedDoc("dash-1", "CPU"), nil)

	_, _, _ = f.svc.ReadDashboard("prod", "dash-1")
	_, _, _ = f.svc.ReadDashboard("prod", "missing")
	_, _ = f.svc.ValidateDashboard("prod", "dash-1")

	assert.Equal(t, 3, f.stores["prod"].closed)
}
