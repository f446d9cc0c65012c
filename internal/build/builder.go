// Package build invokes the external image builder once per run,
// passing the derived tags and labels, and reports whether the image
// was pushed and where the builder wrote its metadata artifact.
package build

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/docker/docker/client"

	"github.com/shipway/shipway/internal/config"
	"github.com/shipway/shipway/internal/run"
	"github.com/shipway/shipway/pkg/logger"
)

// Request carries everything one builder invocation needs.
type Request struct {
	Tags       []string
	Labels     map[string]string
	Push       bool // false for pull-request builds
	ContextDir string
	RecipePath string
}

// Result reports the build outcome. MetadataPath is empty when the
// build was skipped; the caller owns removing the file once done.
type Result struct {
	Pushed       bool
	MetadataPath string
}

// Builder drives the external build engine.
type Builder struct {
	cfg    config.BuildConfig
	runner run.Runner
	engine client.APIClient // optional, probed before building
}

// Option configures a Builder.
type Option func(*Builder)

// WithRunner replaces the process runner (tests).
func WithRunner(r run.Runner) Option {
	return func(b *Builder) { b.runner = r }
}

// WithEngineClient sets a docker API client used to probe the engine
// before the build and to inspect unpushed images after it.
func WithEngineClient(c client.APIClient) Option {
	return func(b *Builder) { b.engine = c }
}

// New creates a Builder for the given build configuration.
func New(cfg config.BuildConfig, opts ...Option) *Builder {
	b := &Builder{cfg: cfg, runner: run.ExecRunner{}}
	for _, o := range opts {
		o(b)
	}
	return b
}

// NewEngineClient builds a docker client from the environment with API
// version negotiation, the way a CI runner exposes its daemon.
func NewEngineClient() (client.APIClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return cli, nil
}

// Build runs the external builder exactly once. An empty tag list is a
// recognized no-op: the builder is not invoked and the zero Result is
// returned without error. A non-zero builder exit is fatal upstream.
func (b *Builder) Build(ctx context.Context, req Request) (Result, error) {
	if len(req.Tags) == 0 {
		logger.Info("No tags derived, skipping build")
		return Result{}, nil
	}

	if b.engine != nil {
		if _, err := b.engine.Ping(ctx); err != nil {
			return Result{}, fmt.Errorf("build engine not reachable: %w", err)
		}
	}

	meta, err := os.CreateTemp("", "shipway-metadata-*.json")
	if err != nil {
		return Result{}, fmt.Errorf("creating metadata file: %w", err)
	}
	meta.Close()

	argv := b.argv(req, meta.Name())
	logger.Info("Invoking builder", "tags", len(req.Tags), "push", req.Push, "recipe", req.RecipePath)
	logger.Debug("Builder command", "argv", argv)

	if err := b.runner.Run(ctx, argv); err != nil {
		os.Remove(meta.Name())
		return Result{}, fmt.Errorf("builder failed: %w", err)
	}

	res := Result{Pushed: req.Push, MetadataPath: meta.Name()}
	if !req.Push {
		b.inspectLocal(ctx, req.Tags[0])
	}
	return res, nil
}

// argv assembles the full builder command line. Label order is
// sorted so the invocation is deterministic run to run.
func (b *Builder) argv(req Request, metadataPath string) []string {
	argv := append([]string{}, b.cfg.Builder...)
	argv = append(argv, "--file", req.RecipePath)
	for _, t := range req.Tags {
		argv = append(argv, "--tag", t)
	}
	keys := make([]string, 0, len(req.Labels))
	for k := range req.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		argv = append(argv, "--label", k+"="+req.Labels[k])
	}
	if b.cfg.CacheFrom != "" {
		argv = append(argv, "--cache-from", b.cfg.CacheFrom)
	}
	if b.cfg.CacheTo != "" {
		argv = append(argv, "--cache-to", b.cfg.CacheTo)
	}
	// Provenance attestation is suppressed: the trust model here is the
	// post-push keyless signature, not builder-generated provenance.
	argv = append(argv, "--provenance=false")
	argv = append(argv, "--metadata-file", metadataPath)
	if req.Push {
		argv = append(argv, "--push")
	} else {
		argv = append(argv, "--load")
	}
	return append(argv, req.ContextDir)
}

// inspectLocal surfaces what an unpushed build produced in the local
// daemon. Best effort: PR builds exist only on the runner.
func (b *Builder) inspectLocal(ctx context.Context, tag string) {
	if b.engine == nil {
		return
	}
	info, _, err := b.engine.ImageInspectWithRaw(ctx, tag)
	if err != nil {
		logger.Debug("Local image inspect failed", "tag", tag, "error", err)
		return
	}
	logger.Info("Image built locally (not pushed)", "tag", tag, "id", info.ID, "size", info.Size)
}
