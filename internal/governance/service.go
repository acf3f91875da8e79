package governance

import (
	"fmt"
	"os"
	"sort"

	"grafana-steward/internal/grafana"
	"grafana-steward/pkg/config"
	"grafana-steward/pkg/log"
)

const (
	searchLimitMax     = 5000
	searchLimitDefault = 1000
	renderDimMin       = 100
	renderDimMax       = 3000
)

// Store is the dashboard-store capability consumed by the service. One store
// handle is built per operation and released on every exit path.
type Store interface {
	GetDashboard(uid string) (grafana.Document, *grafana.Meta, error)
	CreateDashboard(doc grafana.Document, folderUID string) (*grafana.WriteResult, error)
	UpdateDashboard(doc grafana.Document, folderUID string) (*grafana.WriteResult, error)
	DeleteDashboard(uid string) error
	Search(q grafana.SearchQuery) ([]grafana.SearchHit, error)
	ListDatasources() ([]grafana.Datasource, error)
	ListFolders(parentUID string) ([]grafana.Folder, error)
	GetFolder(uid string) (*grafana.Folder, error)
	CreateFolder(title, parentUID string) (*grafana.Folder, error)
	UpdateFolder(uid, title, parentUID string) (*grafana.Folder, error)
	DeleteFolder(uid string, forceDeleteRules bool) error
	CreateSnapshot(doc grafana.Document, name string, expiresSec int64) (*grafana.Snapshot, error)
	RenderPanel(uid string, panelID int64, width, height int, from, to string) ([]byte, error)
	Health() (*grafana.Health, error)
	Close() error
}

// StoreFactory builds a store handle for a resolved cluster.
type StoreFactory func(cluster string, cc config.ClusterConfig) (Store, error)

// Service orchestrates policy, inspection, validation and diffing over the
// injected store capability. It holds no per-request state; concurrent calls
// share nothing but the immutable configuration.
type Service struct {
	cfg    *config.Config
	policy *Policy
	stores StoreFactory
}

// NewService wires the service. factory may be nil, in which case the Grafana
// HTTP client is used.
func NewService(cfg *config.Config, factory StoreFactory) (*Service, error) {
	policy, err := NewPolicy(cfg)
	if err != nil {
		return nil, err
	}
	if factory == nil {
		factory = func(cluster string, cc config.ClusterConfig) (Store, error) {
			return grafana.NewClient(cluster, cc)
		}
	}
	return &Service{cfg: cfg, policy: policy, stores: factory}, nil
}

// Policy exposes the access-control policy, mainly for the CLI and tests.
func (s *Service) Policy() *Policy { return s.policy }

// store resolves a cluster name and builds a store handle for one call.
// Unknown names fail here, before any network interaction.
func (s *Service) store(cluster string) (Store, error) {
	cc, ok := s.cfg.Cluster(cluster)
	if !ok {
		return nil, &UnknownClusterError{Name: cluster, Available: s.cfg.ClusterNames()}
	}
	return s.stores(cluster, cc)
}

// fetchReadable gets a dashboard and applies the read gate: a dashboard the
// caller may not read is indistinguishable from an absent one.
func (s *Service) fetchReadable(store Store, uid string) (grafana.Document, *grafana.Meta, error) {
	doc, meta, err := store.GetDashboard(uid)
	if err != nil {
		return nil, nil, translateStoreError(err, "dashboard", uid)
	}
	if !s.policy.HasReadAccess(doc) {
		return nil, nil, &NotFoundError{Kind: "dashboard", UID: uid}
	}
	return doc, meta, nil
}

// CreateDashboard stamps protection tags, assigns a uid when absent and
// creates the dashboard after a pre-flight existence check.
func (s *Service) CreateDashboard(cluster string, doc grafana.Document, folderUID string) (*grafana.WriteResult, error) {
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	prepared, err := s.policy.PrepareForCreate(doc, folderUID)
	if err != nil {
		return nil, err
	}

	// Pre-flight check: a lookup failure is treated as "does not exist" and
	// not propagated; only a successful lookup is a conflict.
	if uid := prepared.UID(); uid != "" {
		if _, _, err := store.GetDashboard(uid); err == nil {
			return nil, &AlreadyExistsError{UID: uid}
		}
	}

	result, err := store.CreateDashboard(prepared, folderUID)
	if err != nil {
		return nil, translateStoreError(err, "dashboard", prepared.UID())
	}
	log.Infof("created dashboard %s on cluster %s", result.UID, cluster)
	return result, nil
}

// ReadDashboard returns the raw document and its metadata.
func (s *Service) ReadDashboard(cluster, uid string) (grafana.Document, *grafana.Meta, error) {
	store, err := s.store(cluster)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	return s.fetchReadable(store, uid)
}

// UpdateDashboard replaces a dashboard definition. Write access is checked
// against the tags of the EXISTING document, so a caller cannot launder an
// unauthorized dashboard by sending new tags; version and folder are carried
// forward from the existing document.
func (s *Service) UpdateDashboard(cluster, uid string, doc grafana.Document) (*grafana.WriteResult, error) {
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	existing, meta, err := store.GetDashboard(uid)
	if err != nil {
		return nil, translateStoreError(err, "dashboard", uid)
	}
	if err := s.policy.RequireWriteAccess(existing, "update"); err != nil {
		return nil, err
	}

	updated, err := doc.Clone()
	if err != nil {
		return nil, err
	}
	updated.SetUID(uid)
	if version, ok := existing.Version(); ok {
		updated.SetVersion(version)
	}

	folderUID := ""
	if meta != nil {
		folderUID = meta.FolderUID
	}
	prepared, err := s.policy.PrepareForUpdate(updated, folderUID)
	if err != nil {
		return nil, err
	}

	result, err := store.UpdateDashboard(prepared, folderUID)
	if err != nil {
		return nil, translateStoreError(err, "dashboard", uid)
	}
	log.Infof("updated dashboard %s on cluster %s", uid, cluster)
	return result, nil
}

// DeleteDashboard removes a dashboard after checking write access on its
// existing tags.
func (s *Service) DeleteDashboard(cluster, uid string) error {
	store, err := s.store(cluster)
	if err != nil {
		return err
	}
	defer store.Close()

	existing, _, err := store.GetDashboard(uid)
	if err != nil {
		return translateStoreError(err, "dashboard", uid)
	}
	if err := s.policy.RequireWriteAccess(existing, "delete"); err != nil {
		return err
	}

	if err := store.DeleteDashboard(uid); err != nil {
		return translateStoreError(err, "dashboard", uid)
	}
	log.Infof("deleted dashboard %s on cluster %s", uid, cluster)
	return nil
}

// SearchOptions mirrors the backend search filters.
type SearchOptions struct {
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

// Search lists dashboards and folders. Out-of-range paging inputs are clamped
// to sane defaults rather than rejected; hits are filtered by the read tags
// when a read gate is configured.
func (s *Service) Search(cluster string, opts SearchOptions) ([]grafana.SearchHit, error) {
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if opts.Limit > searchLimitMax {
		opts.Limit = searchLimitMax
	}
	if opts.Limit < 1 {
		opts.Limit = searchLimitDefault
	}
	if opts.Page < 1 {
		opts.Page = 1
	}

	hits, err := store.Search(grafana.SearchQuery{
		Query:         opts.Query,
		Tags:          opts.Tags,
		Starred:       opts.Starred,
		FolderUIDs:    opts.FolderUIDs,
		DashboardUIDs: opts.DashboardUIDs,
		DashboardIDs:  opts.DashboardIDs,
		Type:          opts.Type,
		Limit:         opts.Limit,
		Page:          opts.Page,
	})
	if err != nil {
		return nil, translateStoreError(err, "search", opts.Query)
	}

	if !s.policy.ReadGated() {
		return hits, nil
	}
	readable := make([]grafana.SearchHit, 0, len(hits))
	for _, hit := range hits {
		// Folders carry no protection tags; only dashboard hits are gated.
		if hit.Type != "dash-db" || s.policy.HitReadable(hit.Tags) {
			readable = append(readable, hit)
		}
	}
	return readable, nil
}

// CopyOptions controls CopyDashboard.
type CopyOptions struct {
	TargetCluster string // empty: same cluster as the source
	FolderUID     string // empty: inherit the source's folder
	TargetUID     string // empty: cross-cluster keeps the source uid, same-cluster mints one
}

// CopyDashboard copies a dashboard, possibly across clusters. If a dashboard
// already exists at the resolved target uid it is updated in place, provided
// it carries the protection tags.
func (s *Service) CopyDashboard(sourceCluster, sourceUID, newTitle string, opts CopyOptions) (*grafana.WriteResult, error) {
	targetCluster := opts.TargetCluster
	if targetCluster == "" {
		targetCluster = sourceCluster
	}

	// Both clusters must resolve before any network call.
	if _, ok := s.cfg.Cluster(sourceCluster); !ok {
		return nil, &UnknownClusterError{Name: sourceCluster, Available: s.cfg.ClusterNames()}
	}
	if _, ok := s.cfg.Cluster(targetCluster); !ok {
		return nil, &UnknownClusterError{Name: targetCluster, Available: s.cfg.ClusterNames()}
	}
	crossCluster := targetCluster != sourceCluster

	source, err := s.store(sourceCluster)
	if err != nil {
		return nil, err
	}
	sourceDoc, sourceMeta, err := func() (grafana.Document, *grafana.Meta, error) {
		defer source.Close()
		return s.fetchReadable(source, sourceUID)
	}()
	if err != nil {
		return nil, err
	}

	folderUID := opts.FolderUID
	if folderUID == "" && sourceMeta != nil {
		folderUID = sourceMeta.FolderUID
	}

	// Explicit target uid wins; otherwise a cross-cluster copy keeps the
	// source uid for continuity and a same-cluster copy mints a fresh one
	// so the copy cannot collide with its own source.
	targetUID := opts.TargetUID
	if targetUID == "" && crossCluster {
		targetUID = sourceUID
	}

	prepared, err := s.policy.PrepareCopy(sourceDoc, newTitle, folderUID, targetUID)
	if err != nil {
		return nil, err
	}

	target, err := s.store(targetCluster)
	if err != nil {
		return nil, err
	}
	defer target.Close()

	existing, _, lookupErr := target.GetDashboard(prepared.UID())
	if lookupErr == nil {
		if err := s.policy.RequireWriteAccess(existing, "update"); err != nil {
			return nil, err
		}
		if version, ok := existing.Version(); ok {
			prepared.SetVersion(version)
		}
		prepared, err = s.policy.PrepareForUpdate(prepared, folderUID)
		if err != nil {
			return nil, err
		}
		result, err := target.UpdateDashboard(prepared, folderUID)
		if err != nil {
			return nil, translateStoreError(err, "dashboard", prepared.UID())
		}
		log.Infof("copied dashboard %s/%s over existing %s/%s",
			sourceCluster, sourceUID, targetCluster, prepared.UID())
		return result, nil
	}

	result, err := target.CreateDashboard(prepared, folderUID)
	if err != nil {
		return nil, translateStoreError(err, "dashboard", prepared.UID())
	}
	log.Infof("copied dashboard %s/%s to %s/%s",
		sourceCluster, sourceUID, targetCluster, result.UID)
	return result, nil
}

// InspectDashboard fetches a dashboard and produces the structural report.
// The datasource listing is best-effort: when it fails, resolution is marked
// unavailable instead of failing the inspection.
func (s *Service) InspectDashboard(cluster, uid string) (*InspectionReport, error) {
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	doc, meta, err := s.fetchReadable(store, uid)
	if err != nil {
		return nil, err
	}

	var dsNames map[string]string
	if datasources, err := store.ListDatasources(); err == nil {
		dsNames = make(map[string]string, len(datasources))
		for _, ds := range datasources {
			dsNames[ds.UID] = ds.Name
		}
	} else {
		log.Warnf("datasource listing unavailable on cluster %s: %v", cluster, err)
	}

	return Inspect(doc, meta, dsNames)
}

// ValidateDashboard fetches a dashboard and runs the rule set.
func (s *Service) ValidateDashboard(cluster, uid string) (*ValidationReport, error) {
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	doc, _, err := s.fetchReadable(store, uid)
	if err != nil {
		return nil, err
	}
	return Validate(doc)
}

// CompareDashboards diffs two dashboards; clusterB may name a different
// cluster for the B side (empty means the same cluster).
func (s *Service) CompareDashboards(cluster, uidA, uidB, clusterB string) (*ComparisonReport, error) {
	if clusterB == "" {
		clusterB = cluster
	}
	if _, ok := s.cfg.Cluster(cluster); !ok {
		return nil, &UnknownClusterError{Name: cluster, Available: s.cfg.ClusterNames()}
	}
	if _, ok := s.cfg.Cluster(clusterB); !ok {
		return nil, &UnknownClusterError{Name: clusterB, Available: s.cfg.ClusterNames()}
	}

	storeA, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	docA, metaA, err := func() (grafana.Document, *grafana.Meta, error) {
		defer storeA.Close()
		return s.fetchReadable(storeA, uidA)
	}()
	if err != nil {
		return nil, fmt.Errorf("dashboard A: %w", err)
	}

	storeB, err := s.store(clusterB)
	if err != nil {
		return nil, err
	}
	docB, metaB, err := func() (grafana.Document, *grafana.Meta, error) {
		defer storeB.Close()
		return s.fetchReadable(storeB, uidB)
	}()
	if err != nil {
		return nil, fmt.Errorf("dashboard B: %w", err)
	}

	return Compare(
		CompareInput{Cluster: cluster, Doc: docA, Meta: metaA},
		CompareInput{Cluster: clusterB, Doc: docB, Meta: metaB},
	)
}

// SnapshotOptions controls SnapshotDashboard.
type SnapshotOptions struct {
	Name         string
	ExpiresHours int64
	TimeFrom     string
	TimeTo       string
}

// SnapshotResult wraps the backend snapshot ack with request context.
type SnapshotResult struct {
	*grafana.Snapshot
	DashboardUID   string            `json:"dashboard_uid"`
	DashboardTitle string            `json:"dashboard_title"`
	TimeRange      grafana.TimeRange `json:"time_range"`
	ExpiresHours   int64             `json:"expires_hours"`
}

// SnapshotDashboard captures a dashboard snapshot, optionally overriding its
// time range for the capture.
func (s *Service) SnapshotDashboard(cluster, uid string, opts SnapshotOptions) (*SnapshotResult, error) {
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	doc, _, err := s.fetchReadable(store, uid)
	if err != nil {
		return nil, err
	}

	snapDoc, err := doc.Clone()
	if err != nil {
		return nil, err
	}

	timeFrom, timeTo := opts.TimeFrom, opts.TimeTo
	if timeFrom == "" {
		timeFrom = "now-6h"
	}
	if timeTo == "" {
		timeTo = "now"
	}
	if opts.TimeFrom != "" || opts.TimeTo != "" {
		snapDoc["time"] = map[string]any{"from": timeFrom, "to": timeTo}
	}

	name := opts.Name
	if name == "" {
		name = doc.Title()
		if name == "" {
			name = "Dashboard"
		}
		name += " - Snapshot"
	}

	expiresSec := int64(0)
	if opts.ExpiresHours > 0 {
		expiresSec = opts.ExpiresHours * 3600
	}

	snapshot, err := store.CreateSnapshot(snapDoc, name, expiresSec)
	if err != nil {
		return nil, translateStoreError(err, "dashboard", uid)
	}
	return &SnapshotResult{
		Snapshot:       snapshot,
		DashboardUID:   uid,
		DashboardTitle: doc.Title(),
		TimeRange:      grafana.TimeRange{From: timeFrom, To: timeTo},
		ExpiresHours:   opts.ExpiresHours,
	}, nil
}

// RenderOptions controls RenderPanel.
type RenderOptions struct {
	Width    int
	Height   int
	TimeFrom string
	TimeTo   string
	SaveTo   string
}

// RenderResult describes a rendered panel image.
type RenderResult struct {
	DashboardUID   string            `json:"dashboard_uid"`
	DashboardTitle string            `json:"dashboard_title"`
	PanelID        int64             `json:"panel_id"`
	PanelTitle     string            `json:"panel_title"`
	PanelType      string            `json:"panel_type"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	TimeRange      grafana.TimeRange `json:"time_range"`
	ImageSizeBytes int               `json:"image_size_bytes"`
	SavedTo        string            `json:"saved_to,omitempty"`
	SaveError      string            `json:"save_error,omitempty"`
	Image          []byte            `json:"-"`
}

// RenderPanel renders one panel as a PNG. Dimensions are clamped to
// [100, 3000]; a file-save failure is reported in the result, not as an
// operation failure.
func (s *Service) RenderPanel(cluster, uid string, panelID int64, opts RenderOptions) (*RenderResult, error) {
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	width := clamp(opts.Width, renderDimMin, renderDimMax, 1000)
	height := clamp(opts.Height, renderDimMin, renderDimMax, 500)
	timeFrom, timeTo := opts.TimeFrom, opts.TimeTo
	if timeFrom == "" {
		timeFrom = "now-6h"
	}
	if timeTo == "" {
		timeTo = "now"
	}

	doc, _, err := s.fetchReadable(store, uid)
	if err != nil {
		return nil, err
	}
	dashboard, err := doc.Decode()
	if err != nil {
		return nil, err
	}

	var panel *grafana.Panel
	for _, p := range dashboard.Panels {
		if p != nil && p.ID != nil && *p.ID == panelID {
			panel = p
			break
		}
	}
	if panel == nil {
		return nil, &NotFoundError{Kind: "panel", UID: fmt.Sprintf("%s/%d", uid, panelID)}
	}

	image, err := store.RenderPanel(uid, panelID, width, height, timeFrom, timeTo)
	if err != nil {
		return nil, translateStoreError(err, "panel", uid)
	}

	result := &RenderResult{
		DashboardUID:   uid,
		DashboardTitle: dashboard.Title,
		PanelID:        panelID,
		PanelTitle:     panel.Title,
		PanelType:      panel.Type,
		Width:          width,
		Height:         height,
		TimeRange:      grafana.TimeRange{From: timeFrom, To: timeTo},
		ImageSizeBytes: len(image),
		Image:          image,
	}
	if opts.SaveTo != "" {
		if err := os.WriteFile(opts.SaveTo, image, 0o644); err != nil {
			result.SaveError = fmt.Sprintf("failed to save file: %v", err)
		} else {
			result.SavedTo = opts.SaveTo
		}
	}
	return result, nil
}

func clamp(v, min, max, fallback int) int {
	if v == 0 {
		return fallback
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ListClusters returns the configured cluster names, sorted. No I/O.
func (s *Service) ListClusters() []string {
	return s.cfg.ClusterNames()
}

// HealthReport is the outcome of a cluster health probe. An unreachable
// cluster is a report, not an error.
type HealthReport struct {
	Cluster         string          `json:"cluster"`
	Status          string          `json:"status"`
	Health          *grafana.Health `json:"health_info,omitempty"`
	DatasourceCount any             `json:"datasource_count"`
	Error           string          `json:"error,omitempty"`
}

// CheckClusterHealth probes the cluster health endpoint and verifies API
// functionality with a datasource listing.
func (s *Service) CheckClusterHealth(cluster string) (*HealthReport, error) {
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	report := &HealthReport{Cluster: cluster}

	health, err := store.Health()
	if err != nil {
		report.Status = "unhealthy"
		report.DatasourceCount = "unavailable"
		report.Error = err.Error()
		return report, nil
	}
	report.Status = "healthy"
	report.Health = health

	if datasources, err := store.ListDatasources(); err == nil {
		report.DatasourceCount = len(datasources)
	} else {
		report.DatasourceCount = "unavailable"
	}
	return report, nil
}

// ListDatasources lists the datasources configured on a cluster.
func (s *Service) ListDatasources(cluster string) ([]grafana.Datasource, error) {
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	datasources, err := store.ListDatasources()
	if err != nil {
		return nil, translateStoreError(err, "datasources", cluster)
	}
	sort.Slice(datasources, func(i, j int) bool { return datasources[i].Name < datasources[j].Name })
	return datasources, nil
}

// ListFolders lists folders, optionally under a parent folder.
func (s *Service) ListFolders(cluster, parentUID string) ([]grafana.Folder, error) {
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	result, err := store.ListFolders(parentUID)
	if err != nil {
		return nil, translateStoreError(err, "folder", parentUID)
	}
	return result, nil
}

func (s *Service) GetFolder(cluster, uid string) (*grafana.Folder, error) {
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	folder, err := store.GetFolder(uid)
	if err != nil {
		return nil, translateStoreError(err, "folder", uid)
	}
	return folder, nil
}

func (s *Service) CreateFolder(cluster, title, parentUID string) (*grafana.Folder, error) {
	if title == "" {
		return nil, &InvalidArgumentError{Msg: "folder title must not be empty"}
	}
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	folder, err := store.CreateFolder(title, parentUID)
	if err != nil {
		return nil, translateStoreError(err, "folder", title)
	}
	return folder, nil
}

func (s *Service) UpdateFolder(cluster, uid, title, parentUID string) (*grafana.Folder, error) {
	if title == "" {
		return nil, &InvalidArgumentError{Msg: "folder title must not be empty"}
	}
	store, err := s.store(cluster)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	folder, err := store.UpdateFolder(uid, title, parentUID)
	if err != nil {
		return folder, translateStoreError(err, "folder", uid)
	}
	return folder, nil
}

func (s *Service) DeleteFolder(cluster, uid string, forceDeleteRules bool) error {
	store, err := s.store(cluster)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteFolder(uid, forceDeleteRules); err != nil {
		return translateStoreError(err, "folder", uid)
	}
	return nil
}
