// Package autosave persists live state after edits settle.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/azyu/storyloom/internal/metrics"
	"github.com/azyu/storyloom/internal/notify"
	"github.com/azyu/storyloom/internal/persist"
	"github.com/azyu/storyloom/internal/snapshot"
	"github.com/azyu/storyloom/internal/state"
	"github.com/azyu/storyloom/internal/storage"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSettleWindow     = time.Second
	DefaultSavedHold        = 2 * time.Second
	DefaultSnapshotInterval = 30 * time.Minute
)

// SaveFailedMessage is shown to the writer when a save cycle fails.
const SaveFailedMessage = "Could not save your work. Your changes are still open and will be saved on the next edit."

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithSettleWindow sets how long edits must pause before a save.
func WithSettleWindow(d time.Duration) Option {
	return func(c *Coalescer) {
		if d > 0 {
			c.settle = d
		}
	}
}

// WithSavedHold sets how long the saved status is shown.
func WithSavedHold(d time.Duration) Option {
	return func(c *Coalescer) {
		if d > 0 {
			c.hold = d
		}
	}
}

// WithSnapshots enables automatic snapshots at most once per interval.
func WithSnapshots(m *snapshot.Manager, interval time.Duration) Option {
	return func(c *Coalescer) {
		c.snapshots = m
		if interval > 0 {
			c.snapshotInterval = interval
		}
	}
}

// WithNotifier reports save failures to the writer.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Coalescer) { c.notifier = n }
}

// WithMetrics records save cycles.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Coalescer) { c.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Coalescer) { c.log = log }
}

// Coalescer watches the state store and writes the persistable slice once
// edits have been quiet for the settle window. Every relevant change
// restarts the window, so a burst of edits costs a single write.
type Coalescer struct {
	state *state.Store
	kv    storage.Store

	settle           time.Duration
	hold             time.Duration
	snapshotInterval time.Duration
	snapshots        *snapshot.Manager
	notifier         notify.Notifier
	metrics          *metrics.Recorder
	log              logrus.FieldLogger
	now              func() time.Time

	mu           sync.Mutex
	timer        *time.Timer
	gen          uint64
	dirty        bool
	lastProject  *types.ProjectData
	lastSettings *types.Settings
	lastSnapshot time.Time
	started      bool
	closed       bool
	unsubscribe  func()
	inflight     sync.WaitGroup

	statusMu   sync.Mutex
	status     types.SaveStatus
	statusSeq  uint64
	holdTimer  *time.Timer
	deliver    sync.Mutex
	statusSubs map[int]func(types.SaveStatus)
	nextSub    int
}

// New creates a coalescer. Call Start to begin observing.
func New(st *state.Store, kv storage.Store, opts ...Option) *Coalescer {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	c := &Coalescer{
		state:            st,
		kv:               kv,
		settle:           DefaultSettleWindow,
		hold:             DefaultSavedHold,
		snapshotInterval: DefaultSnapshotInterval,
		log:              log,
		now:              time.Now,
		statusSubs:       make(map[int]func(types.SaveStatus)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start takes the current state as the saved baseline and subscribes to
// changes. The automatic snapshot interval starts counting now.
func (c *Coalescer) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true

	st := c.state.State()
	c.lastProject = st.Project()
	c.lastSettings = st.Settings
	c.lastSnapshot = c.now()
	c.unsubscribe = c.state.Subscribe(c.observe)
}

// observe compares by reference: live values are never mutated in place,
// so a new pointer is a change and an equal pointer is not.
func (c *Coalescer) observe(st state.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if st.Project() == c.lastProject && st.Settings == c.lastSettings {
		return
	}
	c.lastProject = st.Project()
	c.lastSettings = st.Settings
	c.scheduleLocked()
}

func (c *Coalescer) scheduleLocked() {
	c.dirty = true
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
	}
	gen := c.gen
	c.timer = time.AfterFunc(c.settle, func() { c.fire(gen) })
}

func (c *Coalescer) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.dirty = false
	c.inflight.Add(1)
	c.mu.Unlock()

	defer c.inflight.Done()
	_ = c.save(context.Background())
}

// Flush cancels a pending window and saves immediately if there are
// unsaved changes. Used before exit.
func (c *Coalescer) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	dirty := c.dirty
	c.dirty = false
	c.mu.Unlock()

	if !dirty {
		return nil
	}
	return c.save(ctx)
}

// Close stops observing and waits for running save cycles.
func (c *Coalescer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.inflight.Wait()

	c.statusMu.Lock()
	if c.holdTimer != nil {
		c.holdTimer.Stop()
	}
	c.statusMu.Unlock()
}

// save runs one save cycle. Cycles from consecutive windows may overlap;
// the last write wins.
func (c *Coalescer) save(ctx context.Context) error {
	started := c.now()
	c.setStatus(types.SaveSaving)

	slice := persist.Extract(c.state.State())
	err := c.write(ctx, slice)
	c.metrics.Observe("save", err == nil, c.now().Sub(started))

	if err != nil {
		c.log.WithError(err).Error("autosave failed")
		if c.notifier != nil {
			c.notifier.Notify(notify.Error, SaveFailedMessage)
		}
		c.setStatus(types.SaveIdle)
		return err
	}

	seq := c.setStatus(types.SaveSaved)
	c.revertAfterHold(seq)
	c.maybeSnapshot(ctx, slice.Project)
	return nil
}

func (c *Coalescer) write(ctx context.Context, slice persist.Slice) error {
	project, err := persist.EncodeProject(slice.Project)
	if err != nil {
		return err
	}
	settings, err := persist.EncodeSettings(slice.Settings)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.kv.Put(gctx, storage.PartitionAppData, storage.KeyProject, project)
	})
	g.Go(func() error {
		return c.kv.Put(gctx, storage.PartitionAppData, storage.KeySettings, settings)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (c *Coalescer) maybeSnapshot(ctx context.Context, project *types.ProjectData) {
	if c.snapshots == nil {
		return
	}

	c.mu.Lock()
	now := c.now()
	if now.Sub(c.lastSnapshot) <= c.snapshotInterval {
		c.mu.Unlock()
		return
	}
	c.lastSnapshot = now
	c.mu.Unlock()

	if _, err := c.snapshots.CreateAutomatic(ctx, project); err != nil {
		c.log.WithError(err).Warn("automatic snapshot failed")
	}
}

// Status returns the current save status.
func (c *Coalescer) Status() types.SaveStatus {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// OnStatus registers fn for status changes and returns a function that
// removes it. fn must not call back into the Coalescer.
func (c *Coalescer) OnStatus(fn func(types.SaveStatus)) func() {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.statusSubs[id] = fn
	return func() {
		c.statusMu.Lock()
		defer c.statusMu.Unlock()
		delete(c.statusSubs, id)
	}
}

func (c *Coalescer) setStatus(s types.SaveStatus) uint64 {
	c.statusMu.Lock()
	return c.setStatusLocked(s)
}

// setStatusLocked releases statusMu before notifying subscribers.
func (c *Coalescer) setStatusLocked(s types.SaveStatus) uint64 {
	c.statusSeq++
	seq := c.statusSeq
	c.status = s
	if s != types.SaveSaved && c.holdTimer != nil {
		c.holdTimer.Stop()
		c.holdTimer = nil
	}
	subs := make([]func(types.SaveStatus), 0, len(c.statusSubs))
	for id := 0; id < c.nextSub; id++ {
		if fn, ok := c.statusSubs[id]; ok {
			subs = append(subs, fn)
		}
	}

	c.deliver.Lock()
	c.statusMu.Unlock()
	defer c.deliver.Unlock()

	c.log.WithField("status", s.String()).Debug("save status changed")
	for _, fn := range subs {
		fn(s)
	}
	return seq
}

// revertAfterHold returns to idle after the hold, unless another status
// change happened in the meantime.
func (c *Coalescer) revertAfterHold(seq uint64) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if c.statusSeq != seq {
		return
	}
	if c.holdTimer != nil {
		c.holdTimer.Stop()
	}
	c.holdTimer = time.AfterFunc(c.hold, func() {
		c.statusMu.Lock()
		if c.statusSeq != seq || c.status != types.SaveSaved {
			c.statusMu.Unlock()
			return
		}
		c.holdTimer = nil
		c.setStatusLocked(types.SaveIdle)
	})
}
