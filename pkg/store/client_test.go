package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/autopipe/engine/pkg/model"
	"github.com/autopipe/engine/pkg/pipelineerr"
	"github.com/autopipe/engine/pkg/state"
)

// newTestClient spins up a disposable Postgres container, runs migrations
// against it, and returns a ready Client. The calling test fails when
// Docker isn't reachable; CI provides it via the testcontainers
// ryuk-backed environment.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("autopipe_test"),
		postgres.WithUsername("autopipe"),
		postgres.WithPassword("autopipe"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{DSN: dsn, MaxConns: 10, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func TestSavePipelineThenGetRoundTrips(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	p := model.NewPipeline("p1", "add a health endpoint", "/tmp/work", 5)
	p.CurrentState = state.AnalyzingTask

	require.NoError(t, client.SavePipeline(ctx, p))

	got, err := client.GetPipeline(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, p.UserRequest, got.UserRequest)
	require.Equal(t, state.AnalyzingTask, got.CurrentState)
	require.Len(t, got.Stages, len(p.Stages))
}

func TestSavePipelineIsIdempotentOnUpdate(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	p := model.NewPipeline("p2", "fix the flaky test", "/tmp/work", 5)
	require.NoError(t, client.SavePipeline(ctx, p))

	p.Iterations = 3
	p.CurrentState = state.Verifying
	require.NoError(t, client.SavePipeline(ctx, p))

	got, err := client.GetPipeline(ctx, "p2")
	require.NoError(t, err)
	require.Equal(t, 3, got.Iterations)
	require.Equal(t, state.Verifying, got.CurrentState)
}

func TestGetPipelineUnknownIDReturnsNotFound(t *testing.T) {
	client := newTestClient(t)
	_, err := client.GetPipeline(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, pipelineerr.ErrNotFound)
}

func TestSaveRunThenGetRoundTrips(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	r := &model.RunRecord{
		AgentID:       "a1",
		WorkingDir:    "/tmp/work",
		Source:        model.SourcePipeline,
		Status:        model.RunRunning,
		InitialPrompt: "implement the feature",
		StartedAt:     time.Now(),
		LastActivity:  time.Now(),
		PerModelUsage: []model.ModelUsage{},
	}
	require.NoError(t, client.SaveRun(ctx, r))

	got, err := client.GetRun(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, r.InitialPrompt, got.InitialPrompt)
	require.Equal(t, model.RunRunning, got.Status)
}

func TestAppendOutputPersistsEvent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	r := &model.RunRecord{
		AgentID:       "a2",
		WorkingDir:    "/tmp/work",
		Source:        model.SourcePipeline,
		Status:        model.RunRunning,
		InitialPrompt: "write tests",
		StartedAt:     time.Now(),
		LastActivity:  time.Now(),
		PerModelUsage: []model.ModelUsage{},
	}
	require.NoError(t, client.SaveRun(ctx, r))

	require.NoError(t, client.AppendOutput(ctx, "a2", model.AgentOutputEvent{
		AgentID:   "a2",
		Type:      model.OutputAssistant,
		Content:   `{"type":"assistant"}`,
		Timestamp: time.Now(),
	}))
}
