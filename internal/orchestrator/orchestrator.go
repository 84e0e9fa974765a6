// Package orchestrator sequences one wallpaper generation run: load and
// prepare the workflow, start the server, wait for readiness, submit, watch
// the event stream to completion, fetch the artifact, apply it. Teardown of
// the server and the stream is guaranteed on every exit path.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/jrwhip/ComfyUI/internal/comfy"
	"github.com/jrwhip/ComfyUI/internal/prompt"
	"github.com/jrwhip/ComfyUI/internal/wallpaper"
	"github.com/jrwhip/ComfyUI/pkg/config"
	"github.com/jrwhip/ComfyUI/pkg/workflow"
)

// Client is the server API surface the orchestrator depends on.
type Client interface {
	WaitReady(ctx context.Context, policy comfy.ReadyPolicy) error
	QueuePrompt(ctx context.Context, wf workflow.Workflow, clientID, promptID string) error
	History(ctx context.Context, promptID string) (comfy.HistoryEntry, error)
	Download(ctx context.Context, ref comfy.ImageRef) ([]byte, error)
}

// Stream is one run's event stream connection.
type Stream interface {
	WaitForCompletion(ctx context.Context, promptID string, onProgress func(comfy.Progress)) error
	Close() error
}

// Process is the spawned server. The orchestrator is its sole owner; Stop is
// called exactly once per run, no matter which step failed.
type Process interface {
	Stop()
}

// SceneGenerator produces a fresh scene description for a character.
type SceneGenerator interface {
	SceneFor(ctx context.Context, ch config.Character) (string, error)
}

type Orchestrator struct {
	cfg    *config.Config
	logger *slog.Logger
	rng    *rand.Rand

	client Client
	launch func() (Process, error)
	dial   func(ctx context.Context, clientID string) (Stream, error)
	scenes SceneGenerator
	store  *wallpaper.Store
	setter wallpaper.Setter

	// OnProgress, when set, receives generation progress reports.
	OnProgress func(comfy.Progress)
}

// New wires an orchestrator against the real server, enricher, and
// wallpaper store described by cfg.
func New(cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		client: comfy.NewClient(cfg.ServerAddr, logger),
		scenes: prompt.NewEnricher(cfg.EnrichCLIPath, time.Duration(cfg.EnrichTimeoutSeconds)*time.Second, cfg.EnrichWorkDir, logger),
		store:  wallpaper.NewStore(cfg.WallpaperDir, cfg.SymlinkPath, logger),
	}
	o.launch = func() (Process, error) {
		return comfy.StartServer(comfy.ServerOptions{
			PythonPath:  cfg.PythonPath,
			ComfyDir:    cfg.ComfyDir,
			StopTimeout: time.Duration(cfg.StopTimeoutSeconds) * time.Second,
		}, logger)
	}
	o.dial = func(ctx context.Context, clientID string) (Stream, error) {
		return comfy.DialStream(ctx, cfg.ServerAddr, clientID, logger)
	}
	if cfg.SetWallpaper {
		o.setter = wallpaper.NewSwaybgSetter(cfg.SwaybgPath, logger)
	}
	return o
}

// Run executes one generation run and returns the saved wallpaper path.
func (o *Orchestrator) Run(ctx context.Context) (string, error) {
	// The workflow is prepared before the server starts so the enrichment
	// CLI runs while nothing else is competing for the GPU or the port.
	wf, err := workflow.Load(o.cfg.WorkflowPath)
	if err != nil {
		return "", err
	}
	o.logger.Info("workflow loaded", "path", o.cfg.WorkflowPath, "nodes", wf.NodeCount())
	o.prepare(ctx, wf)

	proc, err := o.launch()
	if err != nil {
		return "", fmt.Errorf("start server: %w", err)
	}
	defer proc.Stop()

	return o.generate(ctx, wf)
}

// prepare injects the randomized seed and, when enrichment succeeds, the
// composed prompt. Both injections are best-effort and never fail the run.
func (o *Orchestrator) prepare(ctx context.Context, wf workflow.Workflow) {
	seed, state := wf.InjectSeed(o.cfg.SeedNode, o.cfg.SeedInput, o.rng)
	switch state {
	case workflow.Found:
		o.logger.Info("randomized seed", "node", o.cfg.SeedNode, "seed", seed)
	case workflow.Absent:
		o.logger.Warn("seed input not in workflow, keeping template seed",
			"node", o.cfg.SeedNode, "input", o.cfg.SeedInput)
	case workflow.WrongShape:
		o.logger.Warn("seed path has unexpected shape, keeping template seed",
			"node", o.cfg.SeedNode, "input", o.cfg.SeedInput)
	}

	if !o.cfg.EnrichEnabled {
		o.logger.Info("enrichment disabled, using template prompt")
		return
	}

	ch := prompt.PickCharacter(o.rng, o.cfg.Characters)
	o.logger.Info("selected character", "name", ch.Name)
	scene, err := o.scenes.SceneFor(ctx, ch)
	if err != nil {
		o.logger.Warn("scene generation failed, using template prompt", "error", err)
		return
	}

	tag := prompt.PickArtist(o.rng, o.cfg.ArtistTags)
	o.logger.Info("selected artist", "tag", tag)
	switch o.wfInjectPrompt(wf, prompt.Compose(o.cfg.PromptPrefix, tag, scene)) {
	case workflow.Found:
		o.logger.Info("injected dynamic scene into workflow")
	case workflow.Absent:
		o.logger.Warn("prompt input not in workflow, keeping template prompt",
			"node", o.cfg.PromptNode, "input", o.cfg.PromptInput)
	case workflow.WrongShape:
		o.logger.Warn("prompt path has unexpected shape, keeping template prompt",
			"node", o.cfg.PromptNode, "input", o.cfg.PromptInput)
	}
}

func (o *Orchestrator) wfInjectPrompt(wf workflow.Workflow, text string) workflow.Lookup {
	return wf.InjectPrompt(o.cfg.PromptNode, o.cfg.PromptInput, text)
}

func (o *Orchestrator) generate(ctx context.Context, wf workflow.Workflow) (string, error) {
	policy := comfy.ReadyPolicy{
		Timeout: time.Duration(o.cfg.ReadyTimeoutSeconds) * time.Second,
		Policy:  o.cfg.ReadyPollPolicy,
		Base:    time.Duration(o.cfg.ReadyPollBaseSeconds) * time.Second,
		Max:     time.Duration(o.cfg.ReadyPollMaxSeconds) * time.Second,
	}
	if err := o.client.WaitReady(ctx, policy); err != nil {
		return "", err
	}

	clientID := uuid.NewString()
	promptID := uuid.NewString()

	stream, err := o.dial(ctx, clientID)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := stream.Close(); err != nil {
			o.logger.Debug("close event stream", "error", err)
		}
	}()

	o.logger.Info("submitting workflow", "prompt_id", promptID)
	if err := o.client.QueuePrompt(ctx, wf, clientID, promptID); err != nil {
		return "", err
	}

	genCtx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.GenerateTimeoutSeconds)*time.Second)
	defer cancel()
	if err := stream.WaitForCompletion(genCtx, promptID, o.OnProgress); err != nil {
		return "", err
	}

	entry, err := o.client.History(ctx, promptID)
	if err != nil {
		return "", err
	}
	ref, err := comfy.FindArtifact(entry)
	if err != nil {
		return "", err
	}
	o.logger.Info("downloading generated image", "filename", ref.Filename)
	data, err := o.client.Download(ctx, ref)
	if err != nil {
		return "", err
	}

	path, err := o.store.Save(data, time.Now())
	if err != nil {
		return "", err
	}
	if err := o.store.Link(path); err != nil {
		return path, err
	}
	if o.setter != nil {
		if err := o.setter.Set(o.store.Symlink); err != nil {
			return path, fmt.Errorf("set background: %w", err)
		}
	}
	return path, nil
}

// IsNoArtifact reports whether the run completed but located no output,
// which callers report differently from transport failures.
func IsNoArtifact(err error) bool {
	return errors.Is(err, comfy.ErrNoArtifact)
}
