package rundb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/forgotten-org/forgerun/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ events.Sink = (*Recorder)(nil)

func openTestDB(t *testing.T, opts Options) *DB {
	t.Helper()
	if opts.DataDir == "" {
		opts.DataDir = t.TempDir()
	}
	db, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRecorderStoresRun(t *testing.T) {
	db := openTestDB(t, Options{})
	rec := NewRecorder(db, nil)
	clock := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return clock }

	rec.EmitRunStart("run-1", "/src/build-Ninja/Debug")
	rec.EmitStageSkip("run-1", "clean", "clean not requested")
	rec.EmitStageStart("run-1", "build")
	rec.EmitStageLog("run-1", "build", "stdout", "[1/1] linking")
	clock = clock.Add(1500 * time.Millisecond)
	rec.EmitStageFinish("run-1", "build", 2, errors.New("exit status 2"))
	rec.EmitRunFinish("run-1", "failed", 2, errors.New("stage build failed"))

	run, err := db.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, 2, run.ExitCode)
	assert.Equal(t, "stage build failed", run.Error)
	assert.Equal(t, "/src/build-Ninja/Debug", run.Target)
	require.Len(t, run.Stages, 2)
	assert.Equal(t, StageRecord{Stage: "clean", Status: "skipped", Reason: "clean not requested"}, run.Stages[0])
	assert.Equal(t, "failed", run.Stages[1].Status)
	assert.Equal(t, 1500*time.Millisecond, run.Stages[1].Duration)

	var lines []string
	require.NoError(t, db.ForEachLog(context.Background(), "run-1", 0, func(l LogLine) error {
		lines = append(lines, l.Stage+":"+l.Message)
		return nil
	}))
	assert.Equal(t, []string{"build:[1/1] linking"}, lines)
}

func TestListRunsNewestFirst(t *testing.T) {
	db := openTestDB(t, Options{})
	ctx := context.Background()
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.BeginRun(ctx, id, "t", base.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, db.FinishRun(ctx, "b", "succeeded", 0, nil, base.Add(time.Hour)))

	runs, err := db.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "running", runs[0].Status)
	assert.True(t, runs[0].FinishedAt.IsZero())
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, "succeeded", runs[1].Status)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Runs)
	assert.Equal(t, int64(schemaVersion), stats.SchemaVersion)
	assert.Positive(t, stats.BytesUsed)
}

func TestUnknownRun(t *testing.T) {
	db := openTestDB(t, Options{})
	_, err := db.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
	err = db.FinishRun(context.Background(), "missing", "failed", 1, nil, time.Now())
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestAppendLogEvictsOldest(t *testing.T) {
	db := openTestDB(t, Options{LogMaxBytes: 10})
	ctx := context.Background()
	require.NoError(t, db.BeginRun(ctx, "r", "t", time.Now()))

	for _, msg := range []string{"aaaa", "bbbb", "cccc"} {
		_, err := db.AppendLog(ctx, LogLine{RunID: "r", Stage: "build", Channel: "stdout", Message: msg})
		require.NoError(t, err)
	}
	var got []string
	require.NoError(t, db.ForEachLog(ctx, "r", 0, func(l LogLine) error {
		got = append(got, l.Message)
		return nil
	}))
	assert.Equal(t, []string{"bbbb", "cccc"}, got)

	_, err := db.AppendLog(ctx, LogLine{RunID: "r", Message: strings.Repeat("x", 11)})
	require.ErrorIs(t, err, ErrLogQuotaExceeded)
	assert.True(t, IsQuotaExceeded(err))
}

func storedLogBytes(t *testing.T, db *DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.sql.QueryRow(`SELECT COALESCE(SUM(length(CAST(message AS BLOB))), 0) FROM stage_log`).Scan(&n))
	return n
}

func TestAppendLogTracksRunningSize(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, Options{DataDir: dir, LogMaxBytes: 64})
	ctx := context.Background()
	require.NoError(t, db.BeginRun(ctx, "r", "t", time.Now()))

	for i := 0; i < 50; i++ {
		msg := strings.Repeat("é", i%7+1) // multi-byte so bytes and chars differ
		_, err := db.AppendLog(ctx, LogLine{RunID: "r", Stage: "build", Channel: "stdout", Message: msg})
		require.NoError(t, err)
		require.Equal(t, storedLogBytes(t, db), db.logBytes, "line %d", i)
		require.LessOrEqual(t, db.logBytes, int64(64))
	}

	want := db.logBytes
	require.NoError(t, db.Close())
	db = openTestDB(t, Options{DataDir: dir, LogMaxBytes: 64})
	assert.Equal(t, want, db.logBytes)
}

func TestAppendLogCostDoesNotGrowWithRetainedLog(t *testing.T) {
	if testing.Short() {
		t.Skip("fills the log table")
	}
	db := openTestDB(t, Options{})
	ctx := context.Background()
	require.NoError(t, db.BeginRun(ctx, "old", "t", time.Now()))

	line := strings.Repeat("c", 120)
	tx, err := db.sql.BeginTx(ctx, nil)
	require.NoError(t, err)
	for i := 0; i < 50000; i++ {
		_, err := tx.ExecContext(ctx, `INSERT INTO stage_log (run_id, stage, channel, message, ts) VALUES ('old', 'build', 'stdout', ?, 0)`, line)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
	require.NoError(t, db.loadLogBytes(ctx))
	require.Equal(t, int64(50000*120), db.logBytes)

	rec := NewRecorder(db, nil)
	require.NoError(t, db.BeginRun(ctx, "new", "t", time.Now()))
	const n = 200
	start := time.Now()
	for i := 0; i < n; i++ {
		rec.EmitStageLog("new", "build", "stdout", line)
	}
	perLine := time.Since(start) / n
	assert.Less(t, perLine, 3*time.Millisecond, "append cost per line with a full log")
	assert.Equal(t, storedLogBytes(t, db), db.logBytes)
}

func TestReopenKeepsHistory(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(context.Background(), Options{DataDir: dir})
	require.NoError(t, err)
	require.NoError(t, db.BeginRun(context.Background(), "keep", "t", time.Now()))
	require.NoError(t, db.Close())

	db = openTestDB(t, Options{DataDir: dir})
	_, err = db.GetRun(context.Background(), "keep")
	require.NoError(t, err)
}
