//go:build integration_pg
// +build integration_pg

package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"testing"
	"time"

	"psirt_report_bot/internal/domain/request"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "psirt",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/psirt?sslmode=disable", host, mapped.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn, stop := startPostgres(t)
	t.Cleanup(stop)

	log := logrus.New()
	log.SetOutput(io.Discard)
	require.NoError(t, RunMigrate(logrus.NewEntry(log), dsn, MigrateUp))

	db, err := NewPostgresConnection(dsn, 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertRequest(t *testing.T, db *sql.DB, requester, createdAt, sender string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(`INSERT INTO report_requests
        (requester_id, created_at_text, sender_display_name, reply_target, report_variant, report_window_days)
        VALUES ($1, $2, $3, 'room-1', 'xlxs', 7) RETURNING id`, requester, createdAt, sender).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestRequestRepository_GuardedWrites_Integration(t *testing.T) {
	db := setupDB(t)
	repo := NewPostgresRequestRepository(db)
	ctx := context.Background()

	a := insertRequest(t, db, "ada@example.com", "2024-05-20T12:00:00.000+0000", "Ada")
	b := insertRequest(t, db, "bob@example.com", "2024-05-20T12:00:05.000+0000", "bot")

	ids, err := repo.ListPendingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b}, ids)

	rec, err := repo.GetByID(ctx, a)
	require.NoError(t, err)
	assert.True(t, rec.CreatedAt.NeedsNormalization())
	assert.Equal(t, "xlxs", rec.ReportVariant.String)

	ts, err := request.ParseCreatedAt(rec.CreatedAt.Text)
	require.NoError(t, err)
	require.NoError(t, repo.NormalizeCreatedAt(ctx, a, ts))
	rec, err = repo.GetByID(ctx, a)
	require.NoError(t, err)
	assert.True(t, rec.CreatedAt.Time.Time.Equal(ts))

	applied, err := repo.Classify(ctx, b, request.ClassificationBot, request.OutcomeUnknownRequest)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = repo.MarkDuplicate(ctx, b)
	require.NoError(t, err)
	assert.False(t, applied, "terminal record must not be overwritten")

	applied, err = repo.Classify(ctx, a, request.ClassificationUser, request.OutcomeNone)
	require.NoError(t, err)
	assert.True(t, applied)
	rec, err = repo.GetByID(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, request.OutcomeNone, rec.Outcome)
	assert.Equal(t, request.ClassificationUser, rec.Classification)

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, request.ErrRequestNotFound)
}

func TestRequestRepository_ClaimAndDeliver_Integration(t *testing.T) {
	db := setupDB(t)
	repo := NewPostgresRequestRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	id := insertRequest(t, db, "ada@example.com", "2024-05-20T11:00:00.000+0000", "Ada")

	applied, err := repo.ClaimDispatch(ctx, id, now, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.ClaimDispatch(ctx, id, now.Add(time.Minute), now.Add(-9*time.Minute))
	require.NoError(t, err)
	assert.False(t, applied, "fresh claim must not be taken over")

	stale, err := repo.ListStaleClaims(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, stale)

	later := now.Add(15 * time.Minute)
	applied, err = repo.ClaimDispatch(ctx, id, later, later.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.True(t, applied, "stale claim is re-claimed")

	applied, err = repo.RecordDelivery(ctx, id, 200, later)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = repo.RecordDelivery(ctx, id, 500, later)
	require.NoError(t, err)
	assert.False(t, applied)

	rec, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.IsDelivered())
	assert.EqualValues(t, 200, rec.DeliveryStatusCode.Int32)

	ids, err := repo.ListPendingIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCounterRepository_Integration(t *testing.T) {
	db := setupDB(t)
	repo := NewPostgresCounterRepository(db)
	ctx := context.Background()
	first := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	_, err := repo.Increment(ctx, "card_counter")
	assert.ErrorIs(t, err, request.ErrCounterNotFound)

	require.NoError(t, repo.Create(ctx, &request.RunCounter{Name: "card_counter", Count: 1, FirstRunAt: first}))
	err = repo.Create(ctx, &request.RunCounter{Name: "card_counter", Count: 1, FirstRunAt: first})
	assert.ErrorIs(t, err, request.ErrDuplicateCounter)

	counter, err := repo.Increment(ctx, "card_counter")
	require.NoError(t, err)
	assert.EqualValues(t, 2, counter.Count)
	assert.True(t, counter.FirstRunAt.Equal(first))

	got, err := repo.Get(ctx, "card_counter")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Count)
}
