package settings_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/dashboard-service/internal/jobs"
	"jobmate/dashboard-service/internal/model"
	"jobmate/dashboard-service/internal/settings"
	"jobmate/dashboard-service/internal/sheets/sheetstest"
)

type authed struct{}

func (authed) Authenticated() bool         { return true }
func (authed) Clear(context.Context) error { return nil }

func newService(t *testing.T, filterRows [][]string) (*settings.Service, *sheetstest.Fake) {
	t.Helper()
	store := sheetstest.New()
	store.Set(model.FetchRanges[2], filterRows)
	repo := jobs.New(store, authed{})
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	now := func() time.Time { return time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC) }
	return settings.New(repo, now), store
}

var table = [][]string{
	{"Type", "Catégorie", "Valeur", "Actif", "Score", "Raison", "Créé"},
	{"PENALTY", "Titre", "stage", "TRUE", "-50", "internship", "01/01/2026"},
	{"BONUS", "Lieu", "Lyon", "FALSE", "20", "", ""},
}

func TestAddFilter_AppendsActiveDatedRow(t *testing.T) {
	svc, store := newService(t, table)

	err := svc.AddFilter(context.Background(), model.FilterRule{Category: "Titre", Value: "golang", Score: 30, Reason: "stack"})
	require.NoError(t, err)

	calls := store.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "append", calls[0].Op)
	assert.Equal(t, "Config_Filtres", calls[0].Range)
	assert.Equal(t, []string{"BONUS", "Titre", "golang", "TRUE", "30", "stack", "07/03/2026"}, calls[0].Rows[0])
}

func TestAddFilter_Validation(t *testing.T) {
	svc, store := newService(t, table)

	err := svc.AddFilter(context.Background(), model.FilterRule{Category: "Titre", Score: 500})

	var verr *settings.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
	assert.Empty(t, store.Calls())
}

func TestUpdateFilter_WritesRowAtIndexWithDerivedType(t *testing.T) {
	svc, store := newService(t, table)

	err := svc.UpdateFilter(context.Background(), 2, model.FilterRule{Type: "BONUS", Category: "Lieu", Value: "Lyon", Score: -10})
	require.NoError(t, err)

	calls := store.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Config_Filtres!A4", calls[0].Range)
	assert.Equal(t, "PENALTY", calls[0].Rows[0][0])
	assert.Equal(t, "FALSE", calls[0].Rows[0][3])
}

func TestUpdateFilter_RejectsHeaderAndOutOfRange(t *testing.T) {
	svc, _ := newService(t, table)
	rule := model.FilterRule{Category: "Lieu", Value: "Paris"}

	assert.ErrorIs(t, svc.UpdateFilter(context.Background(), 0, rule), settings.ErrNoRule)
	assert.ErrorIs(t, svc.UpdateFilter(context.Background(), 9, rule), settings.ErrNoRule)
	assert.ErrorIs(t, svc.DeleteFilter(context.Background(), -1), settings.ErrNoRule)
}

func TestDeleteFilter_ShiftsAndPads(t *testing.T) {
	svc, store := newService(t, table)

	require.NoError(t, svc.DeleteFilter(context.Background(), 1))

	calls := store.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Config_Filtres!A2", calls[0].Range)
	rows := calls[0].Rows
	require.Len(t, rows, 5)
	assert.Equal(t, "Type", rows[0][0])
	assert.Equal(t, "Lyon", rows[1][2])
	for _, r := range rows[2:] {
		assert.Equal(t, make([]string, 7), r)
	}
	assert.Len(t, svc.Snapshot().FilterRows, 3, "cached snapshot is not mutated")
}
