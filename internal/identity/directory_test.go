package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

func TestParseSeed(t *testing.T) {
	actors, err := ParseSeed([]string{"1:Ana:artist", " ", "2:Tom:team_lead"})
	require.NoError(t, err)
	require.Len(t, actors, 2)
	assert.Equal(t, model.Actor{ID: 2, Name: "Tom", Role: model.RoleTeamLead}, actors[1])

	_, err = ParseSeed([]string{"x:Ana:artist"})
	require.Error(t, err)
	_, err = ParseSeed([]string{"1:Ana:wizard"})
	require.ErrorIs(t, err, model.ErrValidation)
	_, err = ParseSeed([]string{"1:Ana"})
	require.Error(t, err)
}

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory(
		model.Actor{ID: 3, Name: "Sue", Role: model.RoleSupervisor},
		model.Actor{ID: 1, Name: "Ada", Role: model.RoleAdmin},
		model.Actor{ID: 2, Name: "Bea", Role: model.RoleAdmin},
	)

	a, err := d.Lookup(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Sue", a.Name)

	_, err = d.Lookup(ctx, 42)
	require.ErrorIs(t, err, model.ErrNotFound)

	admins, err := d.ListByRole(ctx, model.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, int64(1), admins[0].ID)

	require.ErrorIs(t, d.Put(model.Actor{ID: 9, Role: "nope"}), model.ErrValidation)
}
