package jobs_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/dashboard-service/internal/jobs"
	"jobmate/dashboard-service/internal/model"
	"jobmate/dashboard-service/internal/pipeline"
	"jobmate/dashboard-service/internal/sheets"
	"jobmate/dashboard-service/internal/sheets/sheetstest"
)

type fakeCred struct {
	mu      sync.Mutex
	authed  bool
	cleared int
}

func (c *fakeCred) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed
}

func (c *fakeCred) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authed = false
	c.cleared++
	return nil
}

func newRepo(t *testing.T, opts ...jobs.Option) (*jobs.Repository, *sheetstest.Fake, *fakeCred) {
	t.Helper()
	store := sheetstest.New()
	cred := &fakeCred{authed: true}
	return jobs.New(store, cred, opts...), store, cred
}

func TestFetch_ParsesNormalizesAndDedupes(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.SetJobs(
		sheetstest.JobRow("J1", "Nouvelle"),
		sheetstest.JobRow("", "Prête"),
		sheetstest.JobRow("J2", "LM & CV envoyés"),
		sheetstest.JobRow("J1", "Traitement"),
	)

	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	got := repo.Jobs()
	require.Len(t, got, 2)
	assert.Equal(t, "J1", got[0].ID)
	assert.Equal(t, pipeline.StatusAwaitingReview, got[0].Status)
	assert.Equal(t, 5, got[0].RowPosition, "later duplicate keeps its own row")
	assert.Equal(t, pipeline.StatusSent, got[1].Status)
	assert.Equal(t, 1, repo.Pending())
	assert.False(t, repo.LastFetch().IsZero())
}

func TestFetch_EmptyStore(t *testing.T) {
	repo, _, _ := newRepo(t)
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{Silent: true}))
	assert.Empty(t, repo.Jobs())
	assert.Empty(t, repo.Settings().Filters)
}

func TestFetch_AuthFailureLogsOut(t *testing.T) {
	repo, store, cred := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J1", "Nouvelle"))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	var changes []jobs.Change
	repo.Subscribe(func(c jobs.Change) { changes = append(changes, c) })

	store.ReadErr = sheets.ErrUnauthorized
	err := repo.Fetch(context.Background(), jobs.FetchOptions{})

	assert.ErrorIs(t, err, jobs.ErrAuth)
	assert.Empty(t, repo.Jobs())
	assert.Equal(t, 1, cred.cleared)
	require.Len(t, changes, 1)
	assert.Equal(t, jobs.ChangeCleared, changes[0].Kind)
}

func TestFetch_WithoutCredentialSkipsRead(t *testing.T) {
	repo, store, cred := newRepo(t)
	cred.authed = false

	err := repo.Fetch(context.Background(), jobs.FetchOptions{})

	assert.ErrorIs(t, err, jobs.ErrAuth)
	assert.Zero(t, store.Reads())
}

func TestFetch_TransportFailureKeepsState(t *testing.T) {
	repo, store, cred := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J1", "Nouvelle"))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	store.ReadErr = errors.New("connection reset")
	err := repo.Fetch(context.Background(), jobs.FetchOptions{})

	var ferr *jobs.FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Len(t, repo.Jobs(), 1)
	assert.Zero(t, cred.cleared)
	assert.Equal(t, err, repo.LastError())

	store.ReadErr = nil
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))
	assert.NoError(t, repo.LastError())
}

func TestUpdateStatus_OptimisticThenPersisted(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J0", "Nouvelle"), sheetstest.JobRow("J1", "Nouvelle"))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	ok := repo.UpdateStatus(context.Background(), "J1", pipeline.StatusAwaitingReview, nil, false)
	require.True(t, ok)

	j, _ := repo.Find("J1")
	assert.Equal(t, pipeline.StatusAwaitingReview, j.Status, "visible before the write completes")

	repo.Drain()
	calls := store.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Annonces!AB3", calls[0].Range)
	assert.Equal(t, [][]string{{"Traitement"}}, calls[0].Rows)
}

func TestUpdateStatus_SkipPersistAndExtraFields(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J1", "Prête"))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	ok := repo.UpdateStatus(context.Background(), "J1", pipeline.StatusSent,
		map[string]string{model.FieldSentAt: "2026-10-14T09:00:00Z"}, true)
	require.True(t, ok)
	repo.Drain()

	assert.Empty(t, store.Calls())
	j, _ := repo.Find("J1")
	assert.Equal(t, "2026-10-14T09:00:00Z", j.SentAt)
}

func TestUpdateStatus_UnknownID(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J1", "Nouvelle"))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	assert.False(t, repo.UpdateStatus(context.Background(), "nope", pipeline.StatusSent, nil, false))
	repo.Drain()
	assert.Empty(t, store.Calls())
}

func TestUpdateStatus_WriteFailureNotRolledBack(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J1", "Nouvelle"))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))
	store.WriteErr = errors.New("quota exceeded")

	repo.UpdateStatus(context.Background(), "J1", pipeline.StatusDeclined, nil, false)
	repo.Drain()

	j, _ := repo.Find("J1")
	assert.Equal(t, pipeline.StatusDeclined, j.Status)
}

func TestFetch_SupersedesEarlierPatches(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J1", "Nouvelle"))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	repo.UpdateStatus(context.Background(), "J1", pipeline.StatusAwaitingReview, nil, true)

	// The worker has since moved the job on; the fresh read wins.
	store.SetJobs(sheetstest.JobRow("J1", "A vérifier"))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	j, _ := repo.Find("J1")
	assert.Equal(t, pipeline.StatusToVerify, j.Status)
}

func TestFetch_PatchDuringReadSurvives(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J1", "Nouvelle"))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	entered := make(chan struct{})
	release := make(chan struct{})
	store.BeforeRead = func() {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() { done <- repo.Fetch(context.Background(), jobs.FetchOptions{Silent: true}) }()
	<-entered
	repo.UpdateStatus(context.Background(), "J1", pipeline.StatusDeclined, nil, true)
	close(release)
	require.NoError(t, <-done)

	j, _ := repo.Find("J1")
	assert.Equal(t, pipeline.StatusDeclined, j.Status, "patch issued after the read started is kept")
}

func TestFetch_ReadStartedBeforeLogoutIsDiscarded(t *testing.T) {
	repo, store, cred := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J1", "Nouvelle"))

	entered := make(chan struct{})
	release := make(chan struct{})
	store.BeforeRead = func() {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() { done <- repo.Fetch(context.Background(), jobs.FetchOptions{Silent: true}) }()
	<-entered
	repo.Logout(context.Background())
	close(release)

	assert.ErrorIs(t, <-done, jobs.ErrAuth)
	assert.False(t, cred.Authenticated())
	assert.Empty(t, repo.Jobs(), "collection stays empty after logout")
	_, ok := repo.Find("J1")
	assert.False(t, ok)
}

func TestFetch_ReplacesRatherThanMerges(t *testing.T) {
	repo, store, _ := newRepo(t)
	filters := model.FetchRanges[2]
	store.SetJobs(sheetstest.JobRow("J1", "Nouvelle"), sheetstest.JobRow("J2", "Prête"))
	store.Set(filters, [][]string{
		{"Type", "Catégorie", "Valeur", "Actif", "Score", "Raison"},
		{"BONUS", "Titre", "go", "TRUE", "30", ""},
		{"PENALTY", "Lieu", "Paris", "TRUE", "-10", ""},
	})
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))
	require.Len(t, repo.Jobs(), 2)
	require.Len(t, repo.Settings().Filters, 2)

	store.SetJobs(sheetstest.JobRow("J3", "A vérifier"))
	store.Set(filters, [][]string{
		{"Type", "Catégorie", "Valeur", "Actif", "Score", "Raison"},
		{"BONUS", "Entreprise", "Acme", "TRUE", "20", ""},
	})
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	got := repo.Jobs()
	require.Len(t, got, 1)
	assert.Equal(t, "J3", got[0].ID)
	_, ok := repo.Find("J1")
	assert.False(t, ok)
	_, ok = repo.Find("J2")
	assert.False(t, ok)

	rules := repo.Settings().Filters
	require.Len(t, rules, 1)
	assert.Equal(t, "Entreprise", rules[0].Category)
	assert.Equal(t, "Acme", rules[0].Value)
}

func TestFetch_ConcurrentCallsShareOneRead(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J1", "Nouvelle"))

	var inflight atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	store.BeforeRead = func() {
		if inflight.Add(1) == 1 {
			close(entered)
		}
		<-release
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))
	}()
	<-entered
	assert.True(t, repo.Loading())

	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{Silent: true}))
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, store.Reads())
	assert.False(t, repo.Loading())
}

func TestPatchTTL_ExpiredPatchStopsOverlaying(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	repo, store, _ := newRepo(t, jobs.WithPatchTTL(time.Minute), jobs.WithClock(clock))
	store.SetJobs(sheetstest.JobRow("J1", "Nouvelle"))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	repo.UpdateStatus(context.Background(), "J1", pipeline.StatusAwaitingReview, nil, true)
	j, _ := repo.Find("J1")
	assert.Equal(t, pipeline.StatusAwaitingReview, j.Status)

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()
	j, _ = repo.Find("J1")
	assert.Equal(t, pipeline.StatusNew, j.Status)
}

func TestSubscribe_NotifiesOnMaterialChangeOnly(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J1", "Nouvelle"))

	var changes []jobs.Change
	unsubscribe := repo.Subscribe(func(c jobs.Change) { changes = append(changes, c) })

	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))
	require.Len(t, changes, 1, "identical refresh is not a change")
	assert.Equal(t, jobs.ChangeRefreshed, changes[0].Kind)
	assert.Equal(t, 1, changes[0].Size)

	repo.UpdateStatus(context.Background(), "J1", pipeline.StatusAwaitingReview, nil, true)
	require.Len(t, changes, 2)
	assert.Equal(t, jobs.ChangePatched, changes[1].Kind)
	assert.Equal(t, []string{"J1"}, changes[1].IDs)
	assert.Equal(t, 1, changes[1].Pending)

	unsubscribe()
	repo.UpdateStatus(context.Background(), "J1", pipeline.StatusReady, nil, true)
	assert.Len(t, changes, 2)
}

func TestSaveDraft(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J1", "A vérifier"))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	draft := model.DraftContent{CV: []byte(`{"name":"Ada"}`), CoverLetter: []byte(`"Dear"`)}
	require.NoError(t, repo.SaveDraft(context.Background(), "J1", draft))

	calls := store.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Annonces!AM2:AO2", calls[0].Range)
	assert.Equal(t, [][]string{{`{"name":"Ada"}`, `"Dear"`, "null"}}, calls[0].Rows)

	j, _ := repo.Find("J1")
	assert.Equal(t, `{"name":"Ada"}`, j.CVText)
}

func TestSaveDraft_Errors(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.SetJobs(sheetstest.JobRow("J1", "A vérifier"))
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	assert.ErrorIs(t, repo.SaveDraft(context.Background(), "nope", model.DraftContent{}), jobs.ErrNotFound)

	store.WriteErr = errors.New("boom")
	err := repo.SaveDraft(context.Background(), "J1", model.DraftContent{})
	var werr *jobs.WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "Annonces!AM2:AO2", werr.Range)
}

func TestUpdateRangeAndAppendRow_Refresh(t *testing.T) {
	repo, store, _ := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpdateRange(ctx, "Config_Filtres!A3", [][]string{{"BONUS"}}))
	require.NoError(t, repo.AppendRow(ctx, "Config_Filtres", []string{"PENALTY"}))
	assert.Equal(t, 2, store.Reads())

	store.AppendErr = errors.New("boom")
	var werr *jobs.WriteError
	require.ErrorAs(t, repo.AppendRow(ctx, "Config_Filtres", nil), &werr)
	assert.Equal(t, 2, store.Reads(), "no refresh after a failed write")
}

func TestCounts(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.SetJobs(
		sheetstest.JobRow("J1", "Nouvelle"),
		sheetstest.JobRow("J2", ""),
		sheetstest.JobRow("J3", "Envoyée"),
	)
	require.NoError(t, repo.Fetch(context.Background(), jobs.FetchOptions{}))

	counts := repo.Counts()
	assert.Equal(t, 2, counts[pipeline.StatusNew])
	assert.Equal(t, 1, counts[pipeline.StatusSent])
}
