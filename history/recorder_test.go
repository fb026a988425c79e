package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-shard/types"
)

var (
	_ Connection = (*fakeConn)(nil)
	_ Transactor = (*fakeTx)(nil)
)

type fakeConn struct {
	tx       *fakeTx
	beginErr error
}

func (f *fakeConn) Begin(ctx context.Context) (Transactor, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.tx, nil
}

func (f *fakeConn) Close() error { return nil }

type fakeTx struct {
	runs       []Run
	results    []TestResult
	insertErr  error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) InsertRun(ctx context.Context, r Run) error {
	f.runs = append(f.runs, r)
	return nil
}

func (f *fakeTx) InsertTestResult(ctx context.Context, tr TestResult) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.results = append(f.results, tr)
	return len(f.results), nil
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) {
	f.rolledBack = true
}

func TestRecorderFlush(t *testing.T) {
	tx := &fakeTx{}
	started := time.Unix(1700000000, 0)
	r := NewRecorder(&fakeConn{tx: tx}, log.New(), "run-1", 2, started)

	r.AddStat(types.StatRecord{File: "a_test.go", Test: "TestA", Status: types.TestStatusPass, Elapsed: 1500 * time.Millisecond, Worker: 1})
	r.AddStat(types.StatRecord{File: "b_test.go", Test: "TestB", Status: types.TestStatusFail, Worker: 2})
	r.AddFailure(types.FailureRecord{File: "b_test.go", Description: "TestB", Exception: types.Exception{Message: "boom"}})
	r.AddFailure(types.FailureRecord{File: "c_test.go", Description: "c_test.go", Exception: types.Exception{Message: "build failed"}})

	finished := started.Add(time.Minute)
	require.NoError(t, r.Flush(context.Background(), 3, false, finished))

	require.True(t, tx.committed)
	require.False(t, tx.rolledBack)
	require.Len(t, tx.runs, 1)
	assert.Equal(t, Run{ID: "run-1", StartedAt: started, FinishedAt: finished, Workers: 2, Files: 3, Success: false}, tx.runs[0])

	require.Len(t, tx.results, 3)
	assert.Equal(t, TestResult{RunID: "run-1", File: "a_test.go", Name: "TestA", Status: "pass", Runtime: 1.5, Worker: 1}, tx.results[0])
	assert.Equal(t, "boom", tx.results[1].Message)
	assert.Equal(t, TestResult{RunID: "run-1", File: "c_test.go", Name: "c_test.go", Status: "fail", Message: "build failed"}, tx.results[2])
}

func TestRecorderFlushRollsBackOnError(t *testing.T) {
	tx := &fakeTx{insertErr: errors.New("disk full")}
	r := NewRecorder(&fakeConn{tx: tx}, log.New(), "run-1", 1, time.Now())
	r.AddStat(types.StatRecord{File: "a_test.go", Test: "TestA", Status: types.TestStatusPass})

	err := r.Flush(context.Background(), 1, true, time.Now())
	require.ErrorContains(t, err, "disk full")
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestRecorderFlushBeginError(t *testing.T) {
	r := NewRecorder(&fakeConn{beginErr: errors.New("no connection")}, log.New(), "run-1", 1, time.Now())
	require.ErrorContains(t, r.Flush(context.Background(), 0, true, time.Now()), "no connection")
}
