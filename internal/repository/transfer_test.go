package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

func TestBuildFilterEmpty(t *testing.T) {
	where, args := buildFilter(model.Filter{Limit: 10})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestBuildFilterCombines(t *testing.T) {
	submitter := int64(7)
	cutoff := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	where, args := buildFilter(model.Filter{
		Statuses:      []model.Status{model.StatusScanning, model.StatusVerifying},
		SubmitterID:   &submitter,
		Category:      model.Category("fx"),
		UpdatedBefore: &cutoff,
	})
	assert.Equal(t, " WHERE status = ANY($1) AND submitter_id = $2 AND category = $3 AND updated_at < $4", where)
	require.Len(t, args, 4)
	assert.Equal(t, []string{"scanning", "verifying"}, args[0])
	assert.Equal(t, int64(7), args[1])
	assert.Equal(t, "fx", args[2])
	assert.Equal(t, cutoff, args[3])
}

func TestBuildFilterAwaitingRole(t *testing.T) {
	where, args := buildFilter(model.Filter{AwaitingRole: model.RoleSupervisor})
	assert.Equal(t, " WHERE status = ANY($1)", where)
	assert.Equal(t, []string{"pending_supervisor"}, args[0])

	_, args = buildFilter(model.Filter{AwaitingRole: model.RoleAdmin})
	assert.ElementsMatch(t, []string{
		"pending_team_lead", "pending_supervisor", "pending_data_team", "pending_line_producer",
	}, args[0])

	where, args = buildFilter(model.Filter{AwaitingRole: model.RoleArtist})
	assert.Equal(t, " WHERE FALSE", where)
	assert.Empty(t, args)
}

func TestFailedFilesNeverNil(t *testing.T) {
	assert.Equal(t, []string{}, failedFiles(nil))
	assert.Equal(t, []string{"a.exr"}, failedFiles([]string{"a.exr"}))
}

func TestMarshalExternal(t *testing.T) {
	b, err := marshalExternal(nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	id := int64(12)
	b, err = marshalExternal(&model.ExternalLink{ProjectID: &id, ProjectCode: "NEB"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"projectId":12,"projectCode":"NEB"}`, string(b))
}
