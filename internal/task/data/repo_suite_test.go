package data

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/lk2023060901/pricehunt-backend/internal/task/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTaskRepo runs the behaviour every TaskRepo implementation shares.
// newRepo must return an empty repository.
func testTaskRepo(t *testing.T, newRepo func(t *testing.T) biz.TaskRepo) {
	base := time.Now().UTC().Truncate(time.Millisecond)

	seed := func(t *testing.T, repo biz.TaskRepo, status biz.Status, created time.Time) string {
		t.Helper()
		id := uuid.NewString()
		require.NoError(t, repo.Create(context.Background(), newTask(id, status, created)))
		return id
	}

	t.Run("TransitionIsMonotonic", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		id := seed(t, repo, biz.StatusPending, base)

		running, err := repo.Transition(ctx, id, biz.Transition{
			From: []biz.Status{biz.StatusPending},
			To:   biz.StatusRunning,
			Logs: []biz.LogEntry{{Timestamp: base, Step: biz.StepSearchStarted, Status: "info"}},
			At:   base,
		})
		require.NoError(t, err)
		assert.Equal(t, biz.StatusRunning, running.Status)
		assert.Len(t, running.ProcessingLogs, 2)
		assert.Nil(t, running.CompletedAt)

		_, err = repo.Transition(ctx, id, biz.Transition{From: []biz.Status{biz.StatusPending}, To: biz.StatusRunning, At: base})
		assert.ErrorIs(t, err, biz.ErrStaleWrite)

		done, err := repo.Transition(ctx, id, biz.Transition{
			From:    []biz.Status{biz.StatusRunning},
			To:      biz.StatusCompleted,
			Result:  &biz.Result{Success: true, TotalResults: 2},
			Results: []*types.SearchResult{{Platform: "yahoo", ItemID: "1", Title: "a", URL: "u", Currency: "JPY", Condition: types.ConditionNew, TotalPrice: 10}},
			Logs:    []biz.LogEntry{{Timestamp: base, Step: biz.StepSearchCompleted, Status: "success"}},
			At:      base,
		})
		require.NoError(t, err)
		require.NotNil(t, done.CompletedAt)
		require.NotNil(t, done.Result)
		assert.Equal(t, 2, done.Result.TotalResults)

		// a late cancel loses and leaves the finished record untouched
		errMsg := "late"
		_, err = repo.Transition(ctx, id, biz.Transition{
			From:         []biz.Status{biz.StatusPending, biz.StatusRunning},
			To:           biz.StatusCancelled,
			ErrorMessage: &errMsg,
			Logs:         []biz.LogEntry{{Timestamp: base, Step: biz.StepTaskCancelled, Status: "info"}},
			At:           base,
		})
		assert.ErrorIs(t, err, biz.ErrStaleWrite)

		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, biz.StatusCompleted, got.Status)
		assert.Empty(t, got.ErrorMessage)
		assert.Len(t, got.ProcessingLogs, 3)

		_, err = repo.Transition(ctx, uuid.NewString(), biz.Transition{From: []biz.Status{biz.StatusPending}, To: biz.StatusRunning, At: base})
		assert.ErrorIs(t, err, biz.ErrTaskNotFound)
	})

	t.Run("ResultsSortedCappedWithStats", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		id := seed(t, repo, biz.StatusRunning, base)

		rows := []*types.SearchResult{
			{Platform: "rakuten", ItemID: "1", Title: "a", URL: "u1", Currency: "JPY", Condition: types.ConditionNew, BasePrice: 500, TotalPrice: 500},
			{Platform: "yahoo", ItemID: "2", Title: "b", URL: "u2", Currency: "JPY", Condition: types.ConditionNew, BasePrice: 250, ShippingFee: 50, TotalPrice: 300},
			{Platform: "mercari", ItemID: "3", Title: "c", URL: "u3", Currency: "JPY", Condition: types.ConditionGood, BasePrice: 300, TotalPrice: 300, ShippingUnknown: true},
			{Platform: "yahoo", ItemID: "4", Title: "d", URL: "u4", Currency: "JPY", Condition: types.ConditionNew, BasePrice: 100, TotalPrice: 100},
		}
		_, err := repo.Transition(ctx, id, biz.Transition{
			From: []biz.Status{biz.StatusRunning}, To: biz.StatusCompleted, Results: rows, At: base,
		})
		require.NoError(t, err)

		got, stats, err := repo.Results(ctx, id, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"4", "2", "3"}, []string{got[0].ItemID, got[1].ItemID, got[2].ItemID})
		assert.Equal(t, got[1].BasePrice+got[1].ShippingFee, got[1].TotalPrice)
		assert.True(t, got[2].ShippingUnknown)

		assert.Equal(t, 4, stats.Count)
		assert.Equal(t, 100.0, stats.MinPrice)
		assert.Equal(t, 500.0, stats.MaxPrice)
		assert.Equal(t, 300.0, stats.AvgPrice)
		assert.Equal(t, []types.PlatformCode{"mercari", "rakuten", "yahoo"}, stats.Platforms)
		assert.Equal(t, 2, stats.PlatformCounts["yahoo"])

		_, _, err = repo.Results(ctx, uuid.NewString(), 3)
		assert.ErrorIs(t, err, biz.ErrTaskNotFound)
	})

	t.Run("ListNewestFirstWithCounts", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		old := seed(t, repo, biz.StatusRunning, base)
		mid := seed(t, repo, biz.StatusPending, base.Add(time.Second))
		newest := seed(t, repo, biz.StatusPending, base.Add(2*time.Second))

		_, err := repo.Transition(ctx, old, biz.Transition{
			From: []biz.Status{biz.StatusRunning}, To: biz.StatusCompleted, At: base,
			Results: []*types.SearchResult{
				{Platform: "yahoo", ItemID: "1", Title: "a", URL: "u", Currency: "JPY", Condition: types.ConditionNew, TotalPrice: 1},
				{Platform: "yahoo", ItemID: "2", Title: "b", URL: "u", Currency: "JPY", Condition: types.ConditionNew, TotalPrice: 2},
			},
		})
		require.NoError(t, err)

		items, total, err := repo.List(ctx, biz.ListFilter{Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		require.Len(t, items, 2)
		assert.Equal(t, newest, items[0].Task.ID)
		assert.Equal(t, mid, items[1].Task.ID)

		items, total, err = repo.List(ctx, biz.ListFilter{Page: 1, Limit: 10, Status: biz.StatusCompleted})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, items, 1)
		assert.Equal(t, old, items[0].Task.ID)
		assert.Equal(t, 2, items[0].ResultCount)

		items, _, err = repo.List(ctx, biz.ListFilter{Page: 5, Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("DeleteRemovesRows", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		id := seed(t, repo, biz.StatusRunning, base)
		_, err := repo.Transition(ctx, id, biz.Transition{
			From: []biz.Status{biz.StatusRunning}, To: biz.StatusCompleted, At: base,
			Results: []*types.SearchResult{{Platform: "yahoo", ItemID: "1", Title: "a", URL: "u", Currency: "JPY", Condition: types.ConditionNew, TotalPrice: 1}},
		})
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, id))
		_, err = repo.Get(ctx, id)
		assert.ErrorIs(t, err, biz.ErrTaskNotFound)
		_, _, err = repo.Results(ctx, id, 10)
		assert.ErrorIs(t, err, biz.ErrTaskNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, id), biz.ErrTaskNotFound)
	})
}

func TestMemoryTaskRepo_Suite(t *testing.T) {
	testTaskRepo(t, func(*testing.T) biz.TaskRepo { return NewMemoryTaskRepo() })
}
