package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"game-bridge/internal/protocol"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	mu     sync.Mutex
	ran    []string
	refuse map[string]bool
}

func (e *recordingExecutor) Execute(command string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refuse[command] {
		return errors.New("host busy")
	}
	e.ran = append(e.ran, command)
	return nil
}

func (e *recordingExecutor) commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ran...)
}

type failingStore struct{}

func (failingStore) Load(context.Context) ([]Command, error) { return nil, errors.New("disk gone") }
func (failingStore) Save(context.Context, []Command) error   { return errors.New("disk gone") }

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newFileQueue(t *testing.T, exec Executor) (*Queue, *FileStore) {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "commands.json"))
	mock := clock.NewMock()
	mock.Set(t0.Add(-time.Hour))
	return NewQueue(store, exec, WithClock(mock)), store
}

func TestRoundTripThroughFileStore(t *testing.T) {
	q, store := newFileQueue(t, &recordingExecutor{})
	id, err := q.Enqueue("say hi", t0, 0)
	require.NoError(t, err)
	require.NoError(t, q.Save(context.Background()))

	fresh := NewQueue(store, &recordingExecutor{})
	require.NoError(t, fresh.Load(context.Background()))

	pending := fresh.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, "say hi", pending[0].Command)
	assert.True(t, pending[0].DueAt.Equal(t0))
	assert.Equal(t, StatePending, pending[0].State)
}

func TestEnqueueIsWriteThrough(t *testing.T) {
	q, store := newFileQueue(t, &recordingExecutor{})
	_, err := q.Enqueue("weather clear", t0, 0)
	require.NoError(t, err)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "weather clear", stored[0].Command)
}

func TestTickSelectsDueInOrder(t *testing.T) {
	exec := &recordingExecutor{}
	q, store := newFileQueue(t, exec)
	t1, t2 := t0.Add(time.Minute), t0.Add(2*time.Minute)

	_, err := q.Enqueue("c", t2, 0)
	require.NoError(t, err)
	_, err = q.Enqueue("b", t1, 0)
	require.NoError(t, err)
	_, err = q.Enqueue("a", t0, 0)
	require.NoError(t, err)

	ran := q.Tick(t1)
	require.Len(t, ran, 2)
	assert.Equal(t, []string{"a", "b"}, exec.commands())
	assert.Equal(t, StateExecuted, ran[0].State)

	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "c", pending[0].Command)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "c", stored[0].Command)
}

func TestTickOrdersEqualDueTimesByCreation(t *testing.T) {
	exec := &recordingExecutor{}
	store := NewFileStore(filepath.Join(t.TempDir(), "commands.json"))
	mock := clock.NewMock()
	q := NewQueue(store, exec, WithClock(mock))

	for _, c := range []string{"first", "second", "third"} {
		_, err := q.Enqueue(c, t0, 0)
		require.NoError(t, err)
		mock.Add(time.Millisecond)
	}
	q.Tick(t0)
	assert.Equal(t, []string{"first", "second", "third"}, exec.commands())
}

func TestRecurringRunsOncePerTick(t *testing.T) {
	exec := &recordingExecutor{}
	q, _ := newFileQueue(t, exec)
	id, err := q.Enqueue("save-all", t0, time.Minute)
	require.NoError(t, err)

	// Five and a half intervals late: one run, no replay.
	ran := q.Tick(t0.Add(5*time.Minute + 30*time.Second))
	require.Len(t, ran, 1)
	assert.Equal(t, []string{"save-all"}, exec.commands())

	cmd, ok := q.Get(id)
	require.True(t, ok)
	assert.True(t, cmd.DueAt.Equal(t0.Add(6*time.Minute)), "next due %s", cmd.DueAt)
	assert.Equal(t, 1, cmd.Runs)

	assert.Empty(t, q.Tick(t0.Add(5*time.Minute+45*time.Second)))
	assert.Len(t, q.Tick(t0.Add(6*time.Minute)), 1)
}

func TestCancel(t *testing.T) {
	exec := &recordingExecutor{}
	q, _ := newFileQueue(t, exec)
	id, err := q.Enqueue("stop", t0, 0)
	require.NoError(t, err)

	assert.True(t, q.Cancel(id))
	assert.False(t, q.Cancel(id))
	assert.Empty(t, q.Tick(t0.Add(time.Hour)))
	assert.Empty(t, exec.commands())
}

func TestRefusedCommandStaysPending(t *testing.T) {
	exec := &recordingExecutor{refuse: map[string]bool{"b": true}}
	q, _ := newFileQueue(t, exec)
	for i, c := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(c, t0.Add(time.Duration(i)*time.Second), 0)
		require.NoError(t, err)
	}

	ran := q.Tick(t0.Add(time.Minute))
	require.Len(t, ran, 1)
	assert.Equal(t, []string{"a"}, exec.commands())
	assert.Equal(t, 2, q.Len())

	exec.mu.Lock()
	exec.refuse = nil
	exec.mu.Unlock()
	q.Tick(t0.Add(time.Minute))
	assert.Equal(t, []string{"a", "b", "c"}, exec.commands())
	assert.Zero(t, q.Len())
}

func TestLoadedPastDueRunsOnFirstTick(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "commands.json"))
	require.NoError(t, store.Save(context.Background(), []Command{
		{ID: "1", Command: "late", DueAt: t0.Add(-time.Hour), State: StatePending, CreatedAt: t0.Add(-2 * time.Hour)},
		{ID: "2", Command: "later", DueAt: t0.Add(time.Hour), State: StatePending, CreatedAt: t0.Add(-2 * time.Hour)},
		{ID: "3", Command: "done", DueAt: t0.Add(-time.Hour), State: StateExecuted, CreatedAt: t0.Add(-2 * time.Hour)},
	}))

	exec := &recordingExecutor{}
	q := NewQueue(store, exec)
	require.NoError(t, q.Load(context.Background()))
	assert.Equal(t, 2, q.Len())

	q.Tick(t0)
	q.Tick(t0)
	assert.Equal(t, []string{"late"}, exec.commands())
}

func TestEnqueueValidation(t *testing.T) {
	q, _ := newFileQueue(t, &recordingExecutor{})

	_, err := q.Enqueue("  ", t0, 0)
	assert.Equal(t, protocol.CodeInvalidArguments, protocol.CodeOf(err))
	_, err = q.Enqueue("say", t0, -time.Second)
	assert.Equal(t, protocol.CodeInvalidArguments, protocol.CodeOf(err))
	_, err = q.Enqueue("say", time.Time{}, 0)
	assert.Equal(t, protocol.CodeInvalidArguments, protocol.CodeOf(err))
}

func TestPersistenceFailureIsNotFatal(t *testing.T) {
	q := NewQueue(failingStore{}, &recordingExecutor{})

	id, err := q.Enqueue("say hi", t0, 0)
	require.NoError(t, err)
	_, ok := q.Get(id)
	assert.True(t, ok)

	err = q.Save(context.Background())
	require.ErrorIs(t, err, protocol.ErrPersistenceFailure)
	err = q.Load(context.Background())
	require.ErrorIs(t, err, protocol.ErrPersistenceFailure)
	assert.Equal(t, 1, q.Len(), "in-memory state stays authoritative")
}

func TestFileStoreMissingAndCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.json")
	store := NewFileStore(path)

	cmds, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cmds)

	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))
	_, err = store.Load(context.Background())
	require.Error(t, err)
}

func TestRunnerTicksOnClock(t *testing.T) {
	exec := &recordingExecutor{}
	mock := clock.NewMock()
	mock.Set(t0)
	store := NewFileStore(filepath.Join(t.TempDir(), "commands.json"))
	q := NewQueue(store, exec, WithClock(mock))
	_, err := q.Enqueue("say tick", t0.Add(3*time.Second), 0)
	require.NoError(t, err)

	r := NewRunner(q, 5*time.Second, mock, nil)
	r.Start(context.Background())
	defer r.Stop()
	assert.True(t, r.Running())

	require.Eventually(t, func() bool {
		mock.Add(5 * time.Second)
		return len(exec.commands()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	assert.False(t, r.Running())
}
