// Package pipeline coordinates the per-element translation run:
//
//	Idle → Hashing → CacheHit | Translating → Persisting → Done
//	                            Translating → Failed → Idle
//
// At most one run per element is in flight; a second trigger is rejected as
// skippedBusy. A hash already in the processed set short-circuits without
// any network call. Successful runs persist the OCR result first, then the
// translation, context, image meta and processed set in one write, so a
// processed hash always has a translation. A failure after the OCR write is
// not rolled back; the next run for the hash redoes the work and overwrites
// it.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"transhot/internal/apierr"
	"transhot/internal/archive"
	"transhot/internal/auth"
	"transhot/internal/config"
	"transhot/internal/llm"
	"transhot/internal/logger"
	"transhot/internal/ocr"
	"transhot/internal/snapshot"
	"transhot/internal/store"
	"transhot/pkg/models"
)

// Phase is a step of the per-element state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseHashing     Phase = "hashing"
	PhaseCacheHit    Phase = "cacheHit"
	PhaseTranslating Phase = "translating"
	PhasePersisting  Phase = "persisting"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeTranslated         Outcome = "translated"
	OutcomeSkippedBusy        Outcome = "skippedBusy"
	OutcomeSkippedProcessed   Outcome = "skippedProcessed"
	OutcomeSkippedUnsupported Outcome = "skippedUnsupported"
	OutcomeFailed             Outcome = "failed"
)

// Skipped reports whether the outcome counts as skipped in bulk progress.
func (o Outcome) Skipped() bool {
	return o == OutcomeSkippedBusy || o == OutcomeSkippedProcessed || o == OutcomeSkippedUnsupported
}

// Result describes one run.
type Result struct {
	Outcome  Outcome
	Hash     string
	Entries  []models.TranslationEntry
	Context  string
	Degraded bool // translation count was padded or truncated
	Err      error
}

// Snapshotter produces content-addressed snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context, el *models.Element) (*models.Snapshot, error)
}

// CredentialResolver supplies auth for the OCR and chat calls.
type CredentialResolver interface {
	ResolveVision(ctx context.Context, m auth.Material) (auth.Token, error)
	ResolveChat(apiKey string) (string, error)
}

// Translator translates text blocks in one call.
type Translator interface {
	Translate(ctx context.Context, req llm.TranslateRequest) (*llm.Translation, error)
}

// ContextGenerator produces optional translation guidance.
type ContextGenerator interface {
	Generate(ctx context.Context, req llm.ContextRequest) (string, error)
}

// Deps are the orchestrator's collaborators. Context and Archive may be nil.
type Deps struct {
	Store      store.Store
	Snapshots  Snapshotter
	Resolver   CredentialResolver
	Recognizer ocr.Recognizer
	Translator Translator
	Context    ContextGenerator
	Archive    archive.Archiver
}

// Options tune an Orchestrator.
type Options struct {
	// Defaults are used for settings the store does not hold.
	Defaults config.Settings

	// OnCredentialsMissing is called at most once per orchestrator, the
	// first time a run fails for lack of credentials.
	OnCredentialsMissing func(service string)

	// OnPhase observes state machine transitions.
	OnPhase func(el *models.Element, phase Phase)

	// Now overrides time.Now for image meta timestamps.
	Now func() time.Time
}

// Orchestrator runs the translation pipeline for elements.
type Orchestrator struct {
	deps  Deps
	opts  Options
	state *State
	log   zerolog.Logger

	busyMu sync.Mutex
	busy   map[*models.Element]struct{}

	persistMu    sync.Mutex
	promptOnce   sync.Once
	stopWatching func()
}

// New loads the state from the store and starts following its changes.
func New(ctx context.Context, deps Deps, opts Options) (*Orchestrator, error) {
	const op = "New"

	if deps.Store == nil || deps.Snapshots == nil || deps.Resolver == nil || deps.Recognizer == nil || deps.Translator == nil {
		return nil, fmt.Errorf("%s: store, snapshots, resolver, recognizer and translator are required", op)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	state := NewState()
	if err := state.Load(ctx, deps.Store); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	o := &Orchestrator{
		deps:  deps,
		opts:  opts,
		state: state,
		log:   logger.WithComponent("pipeline"),
		busy:  make(map[*models.Element]struct{}),
	}
	o.stopWatching = deps.Store.OnChange(state.Apply)
	return o, nil
}

// Close stops following store changes.
func (o *Orchestrator) Close() {
	o.stopWatching()
}

// State returns the session state.
func (o *Orchestrator) State() *State {
	return o.state
}

// Busy reports whether a run for el is in flight.
func (o *Orchestrator) Busy(el *models.Element) bool {
	o.busyMu.Lock()
	defer o.busyMu.Unlock()
	_, ok := o.busy[el]
	return ok
}

func (o *Orchestrator) admit(el *models.Element) bool {
	o.busyMu.Lock()
	defer o.busyMu.Unlock()
	if _, ok := o.busy[el]; ok {
		return false
	}
	o.busy[el] = struct{}{}
	return true
}

func (o *Orchestrator) release(el *models.Element) {
	o.busyMu.Lock()
	delete(o.busy, el)
	o.busyMu.Unlock()
}

func (o *Orchestrator) phase(el *models.Element, p Phase) {
	if o.opts.OnPhase != nil {
		o.opts.OnPhase(el, p)
	}
}

// Run executes the pipeline for one element. Errors are reported in
// Result.Err; the element always ends back in PhaseIdle.
func (o *Orchestrator) Run(ctx context.Context, el *models.Element) Result {
	if !o.admit(el) {
		o.log.Debug().Str("src", srcForLog(el)).Msg("Element is already being translated")
		return Result{Outcome: OutcomeSkippedBusy}
	}
	defer o.release(el)
	defer o.phase(el, PhaseIdle)

	startTime := time.Now()

	o.phase(el, PhaseHashing)
	snap, err := o.deps.Snapshots.Snapshot(ctx, el)
	if err != nil {
		if errors.Is(err, snapshot.ErrUnsupportedElement) {
			o.log.Debug().Err(err).Msg("Skipping unsupported element")
			return Result{Outcome: OutcomeSkippedUnsupported, Err: err}
		}
		return o.fail(el, "", err)
	}

	log := o.log.With().Str("hash", snap.Hash).Logger()

	if tables := o.state.Tables(); tables.IsProcessed(snap.Hash) {
		o.phase(el, PhaseCacheHit)
		log.Debug().Msg("Hash already processed")
		return Result{
			Outcome: OutcomeSkippedProcessed,
			Hash:    snap.Hash,
			Entries: tables.Translations[snap.Hash],
			Context: tables.Contexts[snap.Hash],
		}
	}

	o.phase(el, PhaseTranslating)
	res, ocrResult, err := o.translate(ctx, snap, log)
	if err != nil {
		return o.fail(el, snap.Hash, err)
	}

	o.phase(el, PhasePersisting)
	if err := o.persist(ctx, el, snap.Hash, ocrResult, res); err != nil {
		return o.fail(el, snap.Hash, err)
	}

	o.phase(el, PhaseDone)
	log.Info().
		Int("blocks", len(res.Entries)).
		Bool("degraded", res.Degraded).
		Dur("duration", time.Since(startTime)).
		Msg("Element translated")

	res.Outcome = OutcomeTranslated
	res.Hash = snap.Hash
	return res
}

func (o *Orchestrator) fail(el *models.Element, hash string, err error) Result {
	o.phase(el, PhaseFailed)

	if errors.Is(err, auth.ErrCredentialsMissing) {
		var missing *auth.CredentialsMissingError
		service := ""
		if errors.As(err, &missing) {
			service = missing.Service
		}
		o.promptOnce.Do(func() {
			if o.opts.OnCredentialsMissing != nil {
				o.opts.OnCredentialsMissing(service)
			}
		})
	}

	o.log.Error().
		Err(err).
		Str("hash", hash).
		Str("src", srcForLog(el)).
		Msg("Translation pipeline failed")

	return Result{Outcome: OutcomeFailed, Hash: hash, Err: err}
}

// translate runs credentials, OCR, context and translation for a snapshot.
func (o *Orchestrator) translate(ctx context.Context, snap *models.Snapshot, log zerolog.Logger) (Result, *models.OCRResult, error) {
	settings, err := LoadSettings(ctx, o.deps.Store, o.opts.Defaults)
	if err != nil {
		return Result{}, nil, err
	}

	token, err := o.deps.Resolver.ResolveVision(ctx, auth.Material{
		APIKey:   settings.VisionAPIKey,
		Document: settings.VisionCredentials,
	})
	if err != nil {
		return Result{}, nil, err
	}
	chatKey, err := o.deps.Resolver.ResolveChat(settings.ChatAPIKey)
	if err != nil {
		return Result{}, nil, err
	}

	recognized, err := o.deps.Recognizer.Recognize(ctx, snap, token)
	if err != nil {
		return Result{}, nil, err
	}
	texts := recognized.Texts()
	log.Debug().Int("blocks", len(texts)).Msg("Text recognized")

	var guidance string
	if settings.ContextEnabled && o.deps.Context != nil && len(texts) > 0 {
		guidance, err = o.deps.Context.Generate(ctx, llm.ContextRequest{
			Image:          snap.Payload,
			MimeType:       snap.MimeType,
			Texts:          texts,
			TargetLanguage: settings.TargetLanguage,
			APIKey:         chatKey,
			Model:          settings.ContextModel,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Context generation failed, translating without context")
			guidance = ""
		}
	}

	translation, err := o.deps.Translator.Translate(ctx, llm.TranslateRequest{
		Blocks:         recognized.Blocks,
		APIKey:         chatKey,
		Model:          settings.Model,
		TargetLanguage: settings.TargetLanguage,
		Context:        guidance,
	})
	if err != nil {
		return Result{}, nil, err
	}

	return Result{
		Entries:  translation.Entries,
		Context:  guidance,
		Degraded: translation.Degraded,
	}, recognized, nil
}

// persist writes the OCR result, then everything else in one Set.
func (o *Orchestrator) persist(ctx context.Context, el *models.Element, hash string, recognized *models.OCRResult, res Result) error {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	ocrRaw, err := json.Marshal(recognized)
	if err != nil {
		return fmt.Errorf("persist: encode OCR result: %w", err)
	}

	current := o.state.Tables()
	visionResults := cloneWith(current.OCR, hash, json.RawMessage(ocrRaw))
	if err := o.deps.Store.Set(ctx, map[string]any{store.KeyVisionResults: visionResults}); err != nil {
		return fmt.Errorf("persist OCR result: %w", err)
	}
	o.state.update(func(t *Tables) { t.OCR[hash] = ocrRaw })

	current = o.state.Tables()
	next := current.clone()
	next.Translations[hash] = res.Entries
	if res.Context != "" {
		next.Contexts[hash] = res.Context
	}
	next.Meta[hash] = o.visit(current.Meta[hash], el)
	next.addProcessed(hash)

	if err := o.deps.Store.Set(ctx, map[string]any{
		store.KeyTranslationResults:  next.Translations,
		store.KeyTranslationContexts: next.Contexts,
		store.KeyImageMeta:           next.Meta,
		store.KeyProcessedHashes:     next.Processed,
	}); err != nil {
		return fmt.Errorf("persist translation: %w", err)
	}
	o.state.update(func(t *Tables) {
		t.Translations[hash] = res.Entries
		if res.Context != "" {
			t.Contexts[hash] = res.Context
		}
		t.Meta[hash] = next.Meta[hash]
		t.addProcessed(hash)
	})

	o.archiveResults(ctx, hash, ocrRaw, res.Entries)
	return nil
}

func (o *Orchestrator) archiveResults(ctx context.Context, hash string, ocrRaw []byte, entries []models.TranslationEntry) {
	if o.deps.Archive == nil {
		return
	}
	translationRaw, err := json.Marshal(entries)
	if err != nil {
		o.log.Warn().Err(err).Str("hash", hash).Msg("Failed to encode translation for archive")
		return
	}
	for name, data := range map[string][]byte{"vision": ocrRaw, "translation": translationRaw} {
		if _, err := o.deps.Archive.Persist(ctx, archive.Request{Hash: hash, Name: name, Data: data}); err != nil {
			o.log.Warn().Err(err).Str("hash", hash).Str("name", name).Msg("Failed to archive result")
		}
	}
}

// visit records that the image was translated on the element's page.
func (o *Orchestrator) visit(meta models.ImageMeta, el *models.Element) models.ImageMeta {
	if el.Src != "" && !strings.HasPrefix(el.Src, "data:") {
		meta.ImageURL = el.Src
	}
	now := o.opts.Now().UnixMilli()
	origin := Origin(el.PageURL)
	if origin == "" {
		origin = Origin(el.Src)
	}

	pages := make([]models.PageVisit, 0, len(meta.Pages)+1)
	found := false
	for _, p := range meta.Pages {
		if p.Origin == origin {
			p.UpdatedAt = now
			found = true
		}
		pages = append(pages, p)
	}
	if !found && origin != "" {
		pages = append(pages, models.PageVisit{Origin: origin, UpdatedAt: now})
	}
	meta.Pages = pages
	return meta
}

// Origin returns scheme://host for a URL, "file://" for local files, or ""
// when raw cannot be parsed.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return ""
	}
	if u.Scheme == "file" {
		return "file://"
	}
	if u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func cloneWith[V any](m map[string]V, key string, value V) map[string]V {
	out := make(map[string]V, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}

func srcForLog(el *models.Element) string {
	if el == nil {
		return ""
	}
	return apierr.Excerpt([]byte(el.Src), 120)
}
