package approval

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

func TestBuildBaseline(t *testing.T) {
	p := DefaultPolicy()
	chain, err := p.Build(model.CategoryTextures, model.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleTeamLead, model.RoleSupervisor, model.RoleLineProducer}, chain)
}

func TestBuildInsertsDataTeamForHigherRisk(t *testing.T) {
	p := DefaultPolicy()
	chain, err := p.Build(model.CategoryVFXAssets, model.PriorityUrgent)
	require.NoError(t, err)
	assert.Equal(t, []model.Role{
		model.RoleTeamLead, model.RoleSupervisor, model.RoleDataTeam, model.RoleLineProducer,
	}, chain)
}

func TestBuildAppendsDataTeamWithoutLineProducer(t *testing.T) {
	p := DefaultPolicy()
	p.Baseline = []model.Role{model.RoleTeamLead}
	chain, err := p.Build(model.CategoryFX, model.PriorityLow)
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleTeamLead, model.RoleDataTeam}, chain)
}

func TestBuildAutoApprove(t *testing.T) {
	p := DefaultPolicy()
	p.AutoApprove[model.CategoryAudio] = true
	chain, err := p.Build(model.CategoryAudio, model.PriorityNormal)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestBuildRejectsUnknownClassification(t *testing.T) {
	p := DefaultPolicy()
	_, err := p.Build("sculpting", model.PriorityNormal)
	assert.True(t, errors.Is(err, model.ErrInvalidClassification))

	_, err = p.Build(model.CategoryAudio, "whenever")
	assert.True(t, errors.Is(err, model.ErrInvalidClassification))

	p.Baseline = nil
	_, err = p.Build(model.CategoryAudio, model.PriorityNormal)
	assert.True(t, errors.Is(err, model.ErrInvalidClassification))
}

func TestBuildIsDeterministic(t *testing.T) {
	p := DefaultPolicy()
	for _, c := range model.Categories {
		for _, pr := range model.Priorities {
			a, err := p.Build(c, pr)
			require.NoError(t, err)
			b, err := p.Build(c, pr)
			require.NoError(t, err)
			assert.Equal(t, a, b, "category %s priority %s", c, pr)
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.Baseline = append(p.Baseline, model.RoleTeamLead)
	assert.True(t, errors.Is(p.Validate(), model.ErrValidation))

	p = DefaultPolicy()
	p.Baseline = []model.Role{model.RoleArtist}
	assert.True(t, errors.Is(p.Validate(), model.ErrValidation))
}
