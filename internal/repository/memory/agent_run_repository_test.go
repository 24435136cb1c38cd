package memory

import (
	"context"
	"testing"
	"time"

	"ai-memory-agent-be/pkg/agent"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedRun(userID uuid.UUID, question, resolved, answer string, at time.Time) agent.RunState {
	s := agent.NewRunState(agent.Question{Text: question, UserID: userID, SubmittedAt: at})
	s, _ = s.Transition(agent.StatusPlanning)
	s, _ = s.Transition(agent.StatusExecuting)
	if resolved != "" {
		s = s.WithMemoryDecision(agent.MemoryDecision{ResolvedQuestion: resolved})
	}
	s, _ = s.Complete(answer, nil, at)
	return s
}

func TestInsertRun_AndFind(t *testing.T) {
	repo := NewAgentRunRepository()
	ctx := context.Background()
	userID := uuid.New()
	state := completedRun(userID, "Who is Ada?", "", "A mathematician.", time.Now())

	id, err := repo.InsertRun(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, state.ID, id)

	run, err := repo.FindByID(ctx, id, userID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "Who is Ada?", run.Question)
	assert.Equal(t, agent.StatusCompleted, run.Status)
	assert.Equal(t, *state.CompletedAt, run.CreatedAt)

	other, err := repo.FindByID(ctx, id, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, other, "runs are private to their user")
}

func TestListRecentForUser_CompletedOnlyNewestFirst(t *testing.T) {
	repo := NewAgentRunRepository()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	_, _ = repo.InsertRun(ctx, completedRun(userID, "first", "", "1", now.Add(-2*time.Minute)))
	_, _ = repo.InsertRun(ctx, completedRun(userID, "second", "", "2", now.Add(-time.Minute)))
	failed := agent.NewRunState(agent.Question{Text: "broken", UserID: userID, SubmittedAt: now}).Fail(assert.AnError, now)
	_, _ = repo.InsertRun(ctx, failed)
	_, _ = repo.InsertRun(ctx, completedRun(uuid.New(), "someone else", "", "x", now))

	recent, err := repo.ListRecentForUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Question)
	assert.Equal(t, "first", recent[1].Question)

	limited, err := repo.ListRecentForUser(ctx, userID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	all, err := repo.CountForUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all, "history listing includes failed runs")
}

func TestSearchText_MatchesResolvedQuestion(t *testing.T) {
	repo := NewAgentRunRepository()
	ctx := context.Background()
	userID := uuid.New()
	_, _ = repo.InsertRun(ctx, completedRun(userID, "How big is it?", "How big is Yosemite?", "Big.", time.Now()))

	hits, err := repo.SearchText(ctx, userID, "YOSEMITE", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = repo.SearchText(ctx, userID, "", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchVector_ThresholdAndOrder(t *testing.T) {
	repo := NewAgentRunRepository()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	exact, _ := repo.InsertRun(ctx, completedRun(userID, "exact", "", "a", now.Add(-time.Minute)))
	near, _ := repo.InsertRun(ctx, completedRun(userID, "close", "", "b", now))
	far, _ := repo.InsertRun(ctx, completedRun(userID, "far", "", "c", now))
	_, _ = repo.InsertRun(ctx, completedRun(userID, "unembedded", "", "d", now))

	require.NoError(t, repo.UpdateEmbedding(ctx, exact, []float32{1, 0}, "m"))
	require.NoError(t, repo.UpdateEmbedding(ctx, near, []float32{0.8, 0.6}, "m"))
	require.NoError(t, repo.UpdateEmbedding(ctx, far, []float32{0, 1}, "m"))

	hits, err := repo.SearchVector(ctx, userID, []float32{1, 0}, 0.5, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, exact, hits[0].RunID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, near, hits[1].RunID)
	assert.InDelta(t, 0.8, hits[1].Similarity, 1e-6)

	hits, err = repo.SearchVector(ctx, userID, []float32{1, 0}, 0.5, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestUpdateEmbedding_UnknownRun(t *testing.T) {
	err := NewAgentRunRepository().UpdateEmbedding(context.Background(), uuid.New(), []float32{1}, "m")

	assert.True(t, agent.IsNotFound(err))
}

func TestListForUser_Pagination(t *testing.T) {
	repo := NewAgentRunRepository()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()
	for i := 0; i < 5; i++ {
		_, _ = repo.InsertRun(ctx, completedRun(userID, string(rune('a'+i)), "", "x", now.Add(time.Duration(i)*time.Second)))
	}

	page, err := repo.ListForUser(ctx, userID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "e", page[0].Question)
	assert.Equal(t, "d", page[1].Question)

	page, err = repo.ListForUser(ctx, userID, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].Question)

	page, err = repo.ListForUser(ctx, userID, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestDelete(t *testing.T) {
	repo := NewAgentRunRepository()
	ctx := context.Background()
	userID := uuid.New()
	otherID := uuid.New()

	id, _ := repo.InsertRun(ctx, completedRun(userID, "a", "", "x", time.Now()))
	_, _ = repo.InsertRun(ctx, completedRun(userID, "b", "", "x", time.Now()))
	_, _ = repo.InsertRun(ctx, completedRun(otherID, "c", "", "x", time.Now()))

	deleted, err := repo.DeleteRun(ctx, id, otherID)
	require.NoError(t, err)
	assert.False(t, deleted, "cannot delete another user's run")

	deleted, err = repo.DeleteRun(ctx, id, userID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteRun(ctx, id, userID)
	require.NoError(t, err)
	assert.False(t, deleted)

	count, err := repo.DeleteAllForUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	remaining, err := repo.CountForUser(ctx, otherID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestFindByID_ReturnsCopy(t *testing.T) {
	repo := NewAgentRunRepository()
	ctx := context.Background()
	userID := uuid.New()
	id, _ := repo.InsertRun(ctx, completedRun(userID, "a", "", "x", time.Now()))

	run, _ := repo.FindByID(ctx, id, userID)
	run.Answer = "mutated"

	again, _ := repo.FindByID(ctx, id, userID)
	assert.Equal(t, "x", again.Answer)
}

func TestListRecentForUser_NonPositiveLimit(t *testing.T) {
	repo := NewAgentRunRepository()
	ctx := context.Background()
	userID := uuid.New()
	_, _ = repo.InsertRun(ctx, completedRun(userID, "a", "", "x", time.Now()))

	for _, n := range []int{0, -1} {
		recent, err := repo.ListRecentForUser(ctx, userID, n)
		require.NoError(t, err)
		assert.Empty(t, recent)
	}
}

func TestClarificationRunsAreNotSearchable(t *testing.T) {
	repo := NewAgentRunRepository()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	_, _ = repo.InsertRun(ctx, completedRun(userID, "Who is Ada?", "", "A mathematician.", now.Add(-time.Minute)))
	clarification := completedRun(userID, "Who is she?", "", "Did you mean Ada or Grace?", now).AsClarification()
	clarificationID, _ := repo.InsertRun(ctx, clarification)
	require.NoError(t, repo.UpdateEmbedding(ctx, clarificationID, []float32{1, 0}, "m"))

	recent, err := repo.ListRecentForUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "Who is Ada?", recent[0].Question)

	hits, err := repo.SearchText(ctx, userID, "who is", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	scored, err := repo.SearchVector(ctx, userID, []float32{1, 0}, 0.5, 5)
	require.NoError(t, err)
	assert.Empty(t, scored)

	count, err := repo.CountForUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "clarifications stay in the user's history")
}
