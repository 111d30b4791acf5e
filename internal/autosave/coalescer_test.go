package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/azyu/storyloom/internal/notify"
	"github.com/azyu/storyloom/internal/persist"
	"github.com/azyu/storyloom/internal/snapshot"
	"github.com/azyu/storyloom/internal/state"
	"github.com/azyu/storyloom/internal/storage"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSettle = 40 * time.Millisecond
	testHold   = 30 * time.Millisecond
	waitFor    = 2 * time.Second
	tick       = 5 * time.Millisecond
)

// countingStore counts project writes and can be told to fail them.
type countingStore struct {
	storage.Store

	mu          sync.Mutex
	projectPuts int
	fail        error
}

func (s *countingStore) Put(ctx context.Context, p storage.Partition, key string, value []byte) error {
	s.mu.Lock()
	fail := s.fail
	if p == storage.PartitionAppData && key == storage.KeyProject {
		s.projectPuts++
	}
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.Store.Put(ctx, p, key, value)
}

func (s *countingStore) puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectPuts
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(level notify.Level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, level.String()+": "+message)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string{}, n.messages...)
}

type statusLog struct {
	mu       sync.Mutex
	statuses []types.SaveStatus
}

func (l *statusLog) record(s types.SaveStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, s)
}

func (l *statusLog) all() []types.SaveStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.SaveStatus{}, l.statuses...)
}

type fixture struct {
	state     *state.Store
	store     *countingStore
	coalescer *Coalescer
	statuses  *statusLog
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	log, _ := test.NewNullLogger()
	f := &fixture{
		state:    state.Init(types.NewProjectData("Draft", ""), nil),
		store:    &countingStore{Store: storage.NewMemoryStore()},
		statuses: &statusLog{},
	}
	opts = append([]Option{WithSettleWindow(testSettle), WithSavedHold(testHold), WithLogger(log)}, opts...)
	f.coalescer = New(f.state, f.store, opts...)
	f.coalescer.OnStatus(f.statuses.record)
	f.coalescer.Start()
	t.Cleanup(f.coalescer.Close)
	return f
}

// ============================================================================
// Coalescing
// ============================================================================

func TestBurstOfEditsWritesOnce(t *testing.T) {
	f := setup(t)

	for _, title := range []string{"D", "Dr", "Dra", "Draf", "Draft 2"} {
		require.NoError(t, f.state.Dispatch(state.SetTitle{Title: title}))
	}

	require.Eventually(t, func() bool { return f.store.puts() == 1 }, waitFor, tick)
	time.Sleep(3 * testSettle)
	assert.Equal(t, 1, f.store.puts(), "one write per settled burst")

	log, _ := test.NewNullLogger()
	loaded := persist.Load(context.Background(), f.store, log)
	assert.Equal(t, "Draft 2", loaded.Project.Title)
}

func TestEditsInsideWindowPostponeTheWrite(t *testing.T) {
	f := setup(t)

	deadline := time.Now().Add(3 * testSettle)
	for i := 0; time.Now().Before(deadline); i++ {
		require.NoError(t, f.state.Dispatch(state.SetLogline{Logline: string(rune('a' + i%26))}))
		time.Sleep(testSettle / 4)
	}
	assert.Zero(t, f.store.puts(), "no write while edits keep arriving")

	require.Eventually(t, func() bool { return f.store.puts() == 1 }, waitFor, tick)
}

func TestUnchangedStateDoesNotSave(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.state.Dispatch(state.SelectSection{ID: "anything"}))

	time.Sleep(3 * testSettle)
	assert.Zero(t, f.store.puts())
	assert.Equal(t, types.SaveIdle, f.coalescer.Status())
}

func TestSettingsChangeSaves(t *testing.T) {
	f := setup(t)

	f.state.UpdateSettings(func(s *types.Settings) { s.Theme = "light" })

	require.Eventually(t, func() bool { return f.store.puts() == 1 }, waitFor, tick)
	log, _ := test.NewNullLogger()
	loaded := persist.Load(context.Background(), f.store, log)
	assert.Equal(t, "light", loaded.Settings.Theme)
}

// ============================================================================
// Status
// ============================================================================

func TestStatusTransitions(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.state.Dispatch(state.SetTitle{Title: "Saved"}))

	want := []types.SaveStatus{types.SaveSaving, types.SaveSaved, types.SaveIdle}
	require.Eventually(t, func() bool { return len(f.statuses.all()) == len(want) }, waitFor, tick)
	assert.Equal(t, want, f.statuses.all())
	assert.Equal(t, types.SaveIdle, f.coalescer.Status())
}

func TestSavedHoldRestartsOnNewCycle(t *testing.T) {
	f := setup(t, WithSavedHold(200*time.Millisecond))

	require.NoError(t, f.state.Dispatch(state.SetTitle{Title: "first"}))
	require.Eventually(t, func() bool { return f.coalescer.Status() == types.SaveSaved }, waitFor, tick)

	require.NoError(t, f.state.Dispatch(state.SetTitle{Title: "second"}))

	want := []types.SaveStatus{
		types.SaveSaving, types.SaveSaved,
		types.SaveSaving, types.SaveSaved,
		types.SaveIdle,
	}
	require.Eventually(t, func() bool { return len(f.statuses.all()) == len(want) }, waitFor, tick)
	assert.Equal(t, want, f.statuses.all(), "the first hold never reverts the second cycle")
}

func TestSaveFailure(t *testing.T) {
	notifier := &recordingNotifier{}
	f := setup(t, WithNotifier(notifier))
	f.store.mu.Lock()
	f.store.fail = errors.New("disk full")
	f.store.mu.Unlock()

	require.NoError(t, f.state.Dispatch(state.SetTitle{Title: "lost?"}))

	require.Eventually(t, func() bool { return len(f.statuses.all()) == 2 }, waitFor, tick)
	assert.Equal(t, []types.SaveStatus{types.SaveSaving, types.SaveIdle}, f.statuses.all())
	assert.Equal(t, []string{"error: " + SaveFailedMessage}, notifier.all())
	assert.Equal(t, "lost?", f.state.Project().Title, "live state is kept")
}

// ============================================================================
// Flush / Close
// ============================================================================

func TestFlush(t *testing.T) {
	f := setup(t, WithSettleWindow(time.Hour))
	ctx := context.Background()

	require.NoError(t, f.coalescer.Flush(ctx))
	assert.Zero(t, f.store.puts(), "nothing to flush")

	require.NoError(t, f.state.Dispatch(state.SetTitle{Title: "Before exit"}))
	require.NoError(t, f.coalescer.Flush(ctx))
	assert.Equal(t, 1, f.store.puts())

	require.NoError(t, f.coalescer.Flush(ctx))
	assert.Equal(t, 1, f.store.puts())
}

func TestCloseCancelsPendingWrite(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.state.Dispatch(state.SetTitle{Title: "pending"}))
	f.coalescer.Close()

	time.Sleep(3 * testSettle)
	assert.Zero(t, f.store.puts())

	require.NoError(t, f.state.Dispatch(state.SetTitle{Title: "after close"}))
	time.Sleep(3 * testSettle)
	assert.Zero(t, f.store.puts())
}

// ============================================================================
// Automatic snapshots
// ============================================================================

func TestAutomaticSnapshots(t *testing.T) {
	ctx := context.Background()

	t.Run("created once the interval has passed", func(t *testing.T) {
		log, _ := test.NewNullLogger()
		kv := storage.NewMemoryStore()
		snapshots := snapshot.NewManager(kv, log)
		f := setup(t, WithSnapshots(snapshots, time.Nanosecond))

		require.NoError(t, f.state.Dispatch(state.SetTitle{Title: "snap"}))

		require.Eventually(t, func() bool {
			metas, err := snapshots.List(ctx)
			return err == nil && len(metas) == 1
		}, waitFor, tick)

		metas, err := snapshots.List(ctx)
		require.NoError(t, err)
		assert.True(t, metas[0].IsAutomatic())
	})

	t.Run("not created inside the interval", func(t *testing.T) {
		log, _ := test.NewNullLogger()
		kv := storage.NewMemoryStore()
		snapshots := snapshot.NewManager(kv, log)
		f := setup(t, WithSnapshots(snapshots, time.Hour))

		require.NoError(t, f.state.Dispatch(state.SetTitle{Title: "no snap"}))
		require.Eventually(t, func() bool { return f.store.puts() == 1 }, waitFor, tick)

		metas, err := snapshots.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, metas)
	})
}
