package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/azyu/storyloom/internal/ai"
	"github.com/azyu/storyloom/internal/ai/adapters"
	"github.com/azyu/storyloom/internal/autosave"
	"github.com/azyu/storyloom/internal/exchange"
	"github.com/azyu/storyloom/internal/history"
	"github.com/azyu/storyloom/internal/logging"
	"github.com/azyu/storyloom/internal/metrics"
	"github.com/azyu/storyloom/internal/notify"
	"github.com/azyu/storyloom/internal/persist"
	"github.com/azyu/storyloom/internal/search"
	"github.com/azyu/storyloom/internal/snapshot"
	"github.com/azyu/storyloom/internal/state"
	"github.com/azyu/storyloom/internal/storage"
	"github.com/azyu/storyloom/internal/token"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/sirupsen/logrus"
)

// MemoryOnlyMessage is shown for the whole session when the local database
// could not be opened.
const MemoryOnlyMessage = "Local storage is unavailable. Your work is kept in memory only and will be lost when you quit. Export it before closing."

// Export formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

var ErrUnknownFormat = errors.New("unknown export format")

// Options overrides parts of the composition. Zero values use the
// configuration.
type Options struct {
	ConfigDir string
	Store     storage.Store
	Logger    *logrus.Logger
	Images    ai.ImageGenerator
	Clock     func() time.Time
}

// App holds the application state and every component wired around it.
type App struct {
	Config     *ConfigManager
	Log        *logrus.Logger
	Store      storage.Store
	MemoryOnly bool
	State      *state.Store
	Snapshots  *snapshot.Manager
	Assets     *persist.Assets
	Autosave   *autosave.Coalescer
	Notices    *notify.Center
	Metrics    *metrics.Recorder

	cfg       *types.GlobalConfig
	logCloser io.Closer
	now       func() time.Time

	imagesMu sync.Mutex
	images   ai.ImageGenerator

	closeOnce sync.Once
	closeErr  error
}

// New loads configuration, opens the local store and restores the last
// saved state. A store that cannot be opened is replaced by an in-memory
// one and the writer is warned; New only fails on configuration errors.
func New(ctx context.Context, opts Options) (*App, error) {
	var cm *ConfigManager
	if opts.ConfigDir != "" {
		cm = NewConfigManagerAt(opts.ConfigDir)
	} else {
		var err error
		if cm, err = NewConfigManager(); err != nil {
			return nil, err
		}
	}

	cfg, err := cm.LoadGlobalConfig()
	if err != nil {
		return nil, err
	}

	log, closer := opts.Logger, io.Closer(nopCloser{})
	if log == nil {
		if log, closer, err = logging.New(cfg.Logging); err != nil {
			return nil, err
		}
	}

	a := &App{
		Config:    cm,
		Log:       log,
		Notices:   notify.NewCenter(log),
		Metrics:   metrics.New(),
		cfg:       cfg,
		logCloser: closer,
		now:       opts.Clock,
		images:    opts.Images,
	}
	if a.now == nil {
		a.now = time.Now
	}

	a.Store = opts.Store
	if a.Store == nil {
		a.Store = a.openStore(ctx)
	}
	a.Assets = persist.NewAssets(a.Store)

	loaded := persist.Load(ctx, a.Store, log)
	if loaded.Recovered {
		a.Notices.Notify(notify.Warning, "Saved data could not be read and was replaced with defaults.")
	}

	a.State = state.Init(loaded.Project, loaded.Settings, state.WithHistoryLimit(cfg.History.Limit))
	a.Snapshots = snapshot.NewManager(a.Store, log,
		snapshot.WithRetention(cfg.Autosave.SnapshotRetention),
		snapshot.WithMetrics(a.Metrics),
	)
	a.Autosave = autosave.New(a.State, a.Store,
		autosave.WithSettleWindow(cfg.Autosave.SettleWindow),
		autosave.WithSavedHold(cfg.Autosave.SavedHold),
		autosave.WithSnapshots(a.Snapshots, cfg.Autosave.SnapshotInterval),
		autosave.WithNotifier(a.Notices),
		autosave.WithMetrics(a.Metrics),
		autosave.WithLogger(log),
	)
	a.Autosave.Start()

	return a, nil
}

func (a *App) openStore(ctx context.Context) storage.Store {
	start := time.Now()
	db, err := storage.Open(ctx, storage.Options{Dir: a.cfg.DataDir, Driver: a.cfg.Storage.Driver})
	a.Metrics.Observe("open", err == nil, time.Since(start))
	if err == nil {
		a.Log.WithFields(logrus.Fields{"path": db.Path(), "driver": db.Driver()}).Debug("opened local store")
		return db
	}

	a.Log.WithError(err).Warn("local store unavailable, continuing in memory")
	a.MemoryOnly = true
	a.Metrics.SetMemoryOnly(true)
	a.Notices.NotifyPersistent(notify.Warning, MemoryOnlyMessage)
	return storage.NewMemoryStore()
}

// GlobalConfig returns the loaded configuration.
func (a *App) GlobalConfig() *types.GlobalConfig {
	return a.cfg
}

// ============================================================================
// Snapshots
// ============================================================================

// CreateSnapshot stores the present project under name.
func (a *App) CreateSnapshot(ctx context.Context, name string) (types.SnapshotMeta, error) {
	meta, err := a.Snapshots.Create(ctx, a.State.Project(), name)
	if err != nil {
		a.Notices.Notify(notify.Error, "Could not create the snapshot.")
		return types.SnapshotMeta{}, err
	}
	a.Notices.Notify(notify.Success, fmt.Sprintf("Snapshot %q created.", meta.Name))
	return meta, nil
}

// ListSnapshots returns snapshot metadata, newest first.
func (a *App) ListSnapshots(ctx context.Context) ([]types.SnapshotMeta, error) {
	return a.Snapshots.List(ctx)
}

// RestoreSnapshot replaces the live project with a snapshot and clears
// undo history. A missing snapshot leaves the live project untouched.
func (a *App) RestoreSnapshot(ctx context.Context, id int64) error {
	project, err := a.Snapshots.Restore(ctx, id)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			a.Notices.Notify(notify.Error, fmt.Sprintf("Snapshot %d no longer exists.", id))
		} else {
			a.Notices.Notify(notify.Error, "Could not restore the snapshot.")
		}
		return err
	}

	a.State.Replace(project)
	a.Notices.Notify(notify.Success, "Snapshot restored.")
	return nil
}

// DeleteSnapshot removes a snapshot. Deleting a missing snapshot is not an
// error; the writer is told it was already gone.
func (a *App) DeleteSnapshot(ctx context.Context, id int64) error {
	exists, err := a.Snapshots.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		a.Notices.Notify(notify.Warning, fmt.Sprintf("Snapshot %d was already deleted.", id))
		return nil
	}
	if err := a.Snapshots.Delete(ctx, id); err != nil {
		a.Notices.Notify(notify.Error, "Could not delete the snapshot.")
		return err
	}
	a.Notices.Notify(notify.Success, "Snapshot deleted.")
	return nil
}

// ============================================================================
// Project lifecycle
// ============================================================================

// ResetProject starts an empty project, clears undo history and removes
// every stored image.
func (a *App) ResetProject(ctx context.Context, title, logline string) error {
	if err := a.Assets.Clear(ctx); err != nil {
		a.Notices.Notify(notify.Error, "Could not clear stored images.")
		return fmt.Errorf("failed to clear images: %w", err)
	}
	a.State.Reset(title, logline)
	a.Notices.Notify(notify.Success, "Started a new project.")
	return nil
}

// ExportProject writes the project in the given format. inlineImages only
// applies to JSON and embeds stored images for a portable document.
func (a *App) ExportProject(ctx context.Context, w io.Writer, format string, inlineImages bool) (err error) {
	start := time.Now()
	defer func() { a.Metrics.Observe("export", err == nil, time.Since(start)) }()

	project := a.State.Project()
	switch format {
	case "", FormatJSON:
		doc := exchange.Export(project)
		if inlineImages {
			if doc, err = exchange.ExportPortable(ctx, project, a.Assets); err != nil {
				return err
			}
		}
		return exchange.Encode(w, doc)
	case FormatMarkdown:
		_, err = io.WriteString(w, exchange.RenderMarkdown(project))
		return err
	case FormatHTML:
		html, err := exchange.RenderHTML(project)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, html)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ImportProject validates an export document and, only if it is valid and
// its images were stored, replaces the live project with it.
func (a *App) ImportProject(ctx context.Context, data []byte) error {
	start := time.Now()
	project, err := exchange.Import(ctx, data, a.Assets)
	a.Metrics.Observe("import", err == nil, time.Since(start))
	if err != nil {
		a.Notices.Notify(notify.Error, "Import failed. Your current project was not changed.")
		return err
	}

	a.State.Replace(project)
	a.Notices.Notify(notify.Success, fmt.Sprintf("Imported %q.", project.Title))
	return nil
}

// ImportManuscript replaces the live project with one built from a
// Markdown manuscript.
func (a *App) ImportManuscript(markdown string) error {
	title, sections := exchange.ParseManuscript(markdown)
	if len(sections) == 0 {
		return fmt.Errorf("%w: manuscript has no sections", exchange.ErrImportParse)
	}

	project := types.NewProjectData(title, "")
	project.Manuscript = sections
	a.State.Replace(project)
	a.Notices.Notify(notify.Success, fmt.Sprintf("Imported %d sections.", len(sections)))
	return nil
}

// RecordWritingHistory stores today's manuscript word count.
func (a *App) RecordWritingHistory() error {
	project := a.State.Project()
	return a.State.Dispatch(state.RecordWordCount{
		Date:      a.now().Format("2006-01-02"),
		WordCount: token.ProjectWords(project),
	})
}

// ============================================================================
// Entities and images
// ============================================================================

// AddCharacter adds a character and returns its id.
func (a *App) AddCharacter(c types.Character) (string, error) {
	if c.ID == "" {
		c.ID = state.NewID()
	}
	if err := a.State.Dispatch(state.AddCharacter{Character: c}); err != nil {
		return "", err
	}
	return c.ID, nil
}

// RemoveCharacter removes a character and its stored avatar.
func (a *App) RemoveCharacter(ctx context.Context, id string) error {
	if err := a.State.Dispatch(state.RemoveCharacter{ID: id}); err != nil {
		return err
	}
	a.dropAsset(ctx, id)
	return nil
}

// AddWorld adds a world and returns its id.
func (a *App) AddWorld(w types.World) (string, error) {
	if w.ID == "" {
		w.ID = state.NewID()
	}
	if err := a.State.Dispatch(state.AddWorld{World: w}); err != nil {
		return "", err
	}
	return w.ID, nil
}

// RemoveWorld removes a world and its stored ambiance image.
func (a *App) RemoveWorld(ctx context.Context, id string) error {
	if err := a.State.Dispatch(state.RemoveWorld{ID: id}); err != nil {
		return err
	}
	a.dropAsset(ctx, id)
	return nil
}

func (a *App) dropAsset(ctx context.Context, id string) {
	if err := a.Assets.Delete(ctx, id); err != nil {
		a.Log.WithError(err).WithField("key", id).Warn("failed to delete image")
	}
}

// GenerateAvatar generates and stores a portrait for a character. An empty
// prompt is built from the character sheet.
func (a *App) GenerateAvatar(ctx context.Context, characterID, prompt string) error {
	c, ok := a.State.Project().Characters.SelectByID(characterID)
	if !ok {
		return fmt.Errorf("%w: character %s", state.ErrEntityNotFound, characterID)
	}
	if prompt == "" {
		prompt = ai.AvatarPrompt(c)
	}
	return a.generateImage(ctx, state.TargetCharacterAvatar, characterID, prompt)
}

// GenerateAmbiance generates and stores an ambiance image for a world.
func (a *App) GenerateAmbiance(ctx context.Context, worldID, prompt string) error {
	w, ok := a.State.Project().Worlds.SelectByID(worldID)
	if !ok {
		return fmt.Errorf("%w: world %s", state.ErrEntityNotFound, worldID)
	}
	if prompt == "" {
		prompt = ai.AmbiancePrompt(w)
	}
	return a.generateImage(ctx, state.TargetWorldAmbiance, worldID, prompt)
}

func (a *App) generateImage(ctx context.Context, target state.ImageTarget, id, prompt string) error {
	gen, err := a.imageGenerator(ctx)
	if err != nil {
		return err
	}

	lifecycle := func(phase history.Phase) error {
		return a.State.Dispatch(state.ImageGeneration{Target: target, EntityID: id, Phase: phase})
	}
	if err := lifecycle(history.PhasePending); err != nil {
		return err
	}

	start := time.Now()
	data, err := gen.GenerateImage(ctx, truncatePrompt(prompt))
	if err == nil {
		err = a.Assets.Put(ctx, id, data)
	}
	a.Metrics.Observe("generate_image", err == nil, time.Since(start))
	if err != nil {
		_ = lifecycle(history.PhaseRejected)
		a.Notices.Notify(notify.Error, "Image generation failed.")
		return fmt.Errorf("failed to generate image: %w", err)
	}

	if err := lifecycle(history.PhaseFulfilled); err != nil {
		// The entity was removed while the image was generating.
		a.dropAsset(ctx, id)
		return err
	}
	a.Notices.Notify(notify.Success, "Image ready.")
	return nil
}

func (a *App) imageGenerator(ctx context.Context) (ai.ImageGenerator, error) {
	a.imagesMu.Lock()
	defer a.imagesMu.Unlock()

	if a.images != nil {
		return a.images, nil
	}

	provider := a.cfg.Images.Provider
	pc, err := a.Config.GetProviderConfig(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrInvalidAPIKey, err)
	}
	model := a.cfg.Images.Model
	if model == "" {
		model = pc.DefaultModel
	}

	switch provider {
	case "openai":
		var opts []adapters.OpenAIOption
		if pc.BaseURL != "" {
			opts = append(opts, adapters.WithOpenAIBaseURL(pc.BaseURL))
		}
		a.images, err = adapters.NewOpenAIImages(pc.APIKey, model, opts...)
	case "gemini":
		a.images, err = adapters.NewGeminiImages(ctx, pc.APIKey, model)
	default:
		return nil, fmt.Errorf("%w: %q", ai.ErrUnknownProvider, provider)
	}
	if err != nil {
		return nil, err
	}
	return a.images, nil
}

// truncatePrompt keeps long entity descriptions within the provider's
// prompt limit. The exact tokenizer is only loaded for prompts the
// estimate puts near the limit.
func truncatePrompt(prompt string) string {
	if token.EstimateTokens(prompt) < ai.MaxPromptTokens/2 {
		return prompt
	}
	counter, err := token.NewCounter("")
	if err != nil {
		return prompt
	}
	return counter.Truncate(prompt, ai.MaxPromptTokens)
}

// Search finds text across the live project.
func (a *App) Search(query string, opts search.Options) ([]search.Result, error) {
	if !search.IsValidSourceType(opts.FilterType) {
		return nil, fmt.Errorf("unknown search type %q", opts.FilterType)
	}
	return search.Search(search.Documents(a.State.Project()), query, opts)
}

// ============================================================================
// Status and shutdown
// ============================================================================

// Status summarises the project for the status command and the editor.
type Status struct {
	Title          string
	Logline        string
	Characters     int
	Worlds         int
	Sections       int
	Words          int
	Goal           types.ProjectGoals
	Progress       float64
	Snapshots      int
	LatestSnapshot *types.SnapshotMeta
	SaveStatus     types.SaveStatus
	MemoryOnly     bool
	CanUndo        bool
	CanRedo        bool
}

// Status reports the current project and persistence state.
func (a *App) Status(ctx context.Context) (Status, error) {
	st := a.State.State()
	project := st.Project()

	snaps, err := a.Snapshots.List(ctx)
	if err != nil {
		return Status{}, err
	}

	s := Status{
		Title:      project.Title,
		Logline:    project.Logline,
		Characters: project.Characters.Len(),
		Worlds:     project.Worlds.Len(),
		Sections:   len(project.Manuscript),
		Words:      token.ProjectWords(project),
		Goal:       project.ProjectGoals,
		Progress:   token.GoalProgress(project),
		Snapshots:  len(snaps),
		SaveStatus: a.Autosave.Status(),
		MemoryOnly: a.MemoryOnly,
		CanUndo:    len(st.History.Past) > 0,
		CanRedo:    len(st.History.Future) > 0,
	}
	if len(snaps) > 0 {
		s.LatestSnapshot = &snaps[0]
	}
	return s, nil
}

// Close saves pending edits and releases every resource. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		if err := a.Autosave.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to save pending changes: %w", err))
		}
		a.Autosave.Close()

		a.imagesMu.Lock()
		if a.images != nil {
			errs = append(errs, a.images.Close())
		}
		a.imagesMu.Unlock()

		if path := a.cfg.Metrics.Textfile; path != "" {
			if err := a.Metrics.WriteTextfile(path); err != nil {
				a.Log.WithError(err).Warn("failed to write metrics textfile")
			}
		}

		errs = append(errs, a.Store.Close(), a.logCloser.Close())
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
