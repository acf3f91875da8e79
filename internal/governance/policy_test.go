package governance

import (
	"testing"

	"grafana-steward/internal/grafana"
	"grafana-steward/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(t *testing.T) *Policy {
	t.Helper()
	policy, err := NewPolicy(&config.Config{
		Clusters: map[string]config.ClusterConfig{"prod": {URL: "http://grafana:3000"}},
		Tags:     config.TagConfig{Write: []string{"managed", "team-obs"}, Read: []string{"managed"}},
	})
	require.NoError(t, err)
	return policy
}

func TestNewPolicy_ReadTagsMustBeSubsetOfWrite(t *testing.T) {
	_, err := NewPolicy(&config.Config{
		Tags: config.TagConfig{Write: []string{"managed"}, Read: []string{"managed", "other"}},
	})
	require.Error(t, err)
}

func TestHasWriteAccess(t *testing.T) {
	policy := testPolicy(t)

	assert.True(t, policy.HasWriteAccess(grafana.Document{
		"tags": []any{"managed", "team-obs", "extra"},
	}))
	assert.False(t, policy.HasWriteAccess(grafana.Document{
		"tags": []any{"managed"},
	}), "a single write tag is not enough")
	assert.False(t, policy.HasWriteAccess(grafana.Document{}),
		"an untagged dashboard is outside the write boundary")
}

func TestHasReadAccess_EmptyReadTagsLeaveReadsOpen(t *testing.T) {
	policy, err := NewPolicy(&config.Config{
		Tags: config.TagConfig{Write: []string{"managed"}},
	})
	require.NoError(t, err)

	assert.True(t, policy.HasReadAccess(grafana.Document{}))
	assert.False(t, policy.ReadGated())
}

func TestHasReadAccess_Gated(t *testing.T) {
	policy := testPolicy(t)

	assert.True(t, policy.ReadGated())
	assert.True(t, policy.HasReadAccess(grafana.Document{"tags": []any{"managed"}}))
	assert.False(t, policy.HasReadAccess(grafana.Document{"tags": []any{"team-obs"}}))
}

func TestRequireWriteAccess_DenialCarriesRequiredTags(t *testing.T) {
	policy := testPolicy(t)

	err := policy.RequireWriteAccess(grafana.Document{}, "update")
	require.Error(t, err)
	denied, ok := err.(*AccessDeniedError)
	require.True(t, ok)
	assert.Equal(t, "update", denied.Operation)
	assert.Equal(t, []string{"managed", "team-obs"}, denied.RequiredTags)
}

func TestStampWriteTags_Idempotent(t *testing.T) {
	policy := testPolicy(t)
	doc := grafana.Document{"title": "CPU", "tags": []any{"existing"}}

	once, err := policy.StampWriteTags(doc)
	require.NoError(t, err)
	twice, err := policy.StampWriteTags(once)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"existing", "managed", "team-obs"}, once.Tags())
	assert.Equal(t, once.Tags(), twice.Tags())
	assert.Equal(t, []string{"existing"}, doc.Tags(), "input document must not be mutated")
}

func TestNewUID_Format(t *testing.T) {
	uid := NewUID()
	assert.Len(t, uid, 10)
	assert.Regexp(t, "^[0-9a-f]{10}$", uid)
	assert.NotEqual(t, uid, NewUID())
}

func TestAssignUID_PreservesExisting(t *testing.T) {
	policy := testPolicy(t)

	doc, err := policy.AssignUID(grafana.Document{"uid": "keep-me"})
	require.NoError(t, err)
	assert.Equal(t, "keep-me", doc.UID())

	doc, err = policy.AssignUID(grafana.Document{})
	require.NoError(t, err)
	assert.Len(t, doc.UID(), 10)
}

func TestPrepareForCreate_StampsAndStripsVersion(t *testing.T) {
	policy := testPolicy(t)

	prepared, err := policy.PrepareForCreate(grafana.Document{
		"title":   "CPU",
		"version": float64(7),
		"id":      float64(42),
	}, "")
	require.NoError(t, err)

	assert.NotContains(t, prepared, "version")
	assert.Contains(t, prepared, "id", "only the version is stripped on create")
	assert.ElementsMatch(t, []string{"managed", "team-obs"}, prepared.Tags())
	assert.Len(t, prepared.UID(), 10)
}

func TestPrepareForCreate_FolderRestriction(t *testing.T) {
	policy, err := NewPolicy(&config.Config{
		Tags:   config.TagConfig{Write: []string{"managed"}},
		Folder: "ops-folder",
	})
	require.NoError(t, err)

	_, err = policy.PrepareForCreate(grafana.Document{"title": "CPU"}, "other-folder")
	assert.True(t, IsAccessDenied(err))

	_, err = policy.PrepareForCreate(grafana.Document{"title": "CPU"}, "ops-folder")
	assert.NoError(t, err)

	_, err = policy.PrepareForCreate(grafana.Document{"title": "CPU"}, "")
	assert.True(t, IsAccessDenied(err), "root writes are denied under a folder restriction")
}

func TestPrepareCopy_ExplicitTargetUIDWins(t *testing.T) {
	policy := testPolicy(t)
	source := grafana.Document{
		"uid":     "src-uid",
		"id":      float64(3),
		"version": float64(9),
		"url":     "/d/src-uid/cpu",
		"title":   "CPU",
	}

	copied, err := policy.PrepareCopy(source, "CPU Copy", "", "explicit-uid")
	require.NoError(t, err)

	assert.Equal(t, "explicit-uid", copied.UID())
	assert.Equal(t, "CPU Copy", copied.Title())
	assert.NotContains(t, copied, "id")
	assert.NotContains(t, copied, "version")
	assert.NotContains(t, copied, "url")
}

func TestPrepareCopy_MintsUIDWithoutTarget(t *testing.T) {
	policy := testPolicy(t)
	source := grafana.Document{"uid": "src-uid", "title": "CPU"}

	copied, err := policy.PrepareCopy(source, "CPU Copy", "", "")
	require.NoError(t, err)

	assert.NotEqual(t, "src-uid", copied.UID())
	assert.Len(t, copied.UID(), 10)
	assert.Equal(t, "src-uid", source.UID(), "source document must not be mutated")
}
