// Package pipeline runs the four publisher stages in order: derive
// metadata, build the image, extract the pushed digest, sign each
// release tag. Stages three and four only run when the build actually
// pushed; an unrecognized trigger short-circuits the whole run as a
// no-op.
package pipeline

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"

	"github.com/shipway/shipway/internal/build"
	"github.com/shipway/shipway/internal/config"
	"github.com/shipway/shipway/internal/derive"
	"github.com/shipway/shipway/internal/metadata"
	"github.com/shipway/shipway/internal/sign"
	"github.com/shipway/shipway/internal/trigger"
	"github.com/shipway/shipway/pkg/logger"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeNoOp      Outcome = "noop"      // nothing to do, success
	OutcomePublished Outcome = "published" // built, pushed, signed
	OutcomeBuilt     Outcome = "built"     // built without push (PR)
)

// Summary is what a finished run reports back to the operator.
type Summary struct {
	RunID       string
	Outcome     Outcome
	Tags        []string
	SignTargets []string
	Digest      string
	Signed      []string
}

// Pipeline wires the four stages together. Builder and Signer are
// injectable so the whole flow is testable without docker or cosign.
type Pipeline struct {
	cfg     *config.Config
	builder *build.Builder
	signer  *sign.Signer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBuilder replaces the image builder (tests).
func WithBuilder(b *build.Builder) Option {
	return func(p *Pipeline) { p.builder = b }
}

// WithSigner replaces the release signer (tests).
func WithSigner(s *sign.Signer) Option {
	return func(p *Pipeline) { p.signer = s }
}

// New assembles a Pipeline from configuration.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		builder: build.New(cfg.Build),
		signer:  sign.New(cfg.Sign.Tool, nil),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes one full publish. The trigger context is read-only
// input; every stage hands explicit results to the next.
func (p *Pipeline) Run(ctx context.Context, tc trigger.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	log := logger.With("run_id", sum.RunID)

	// Stage 1: derive tags, labels, sign targets.
	res, err := derive.Derive(tc, derive.Options{
		Registry: p.cfg.Image.Registry,
		Image:    p.cfg.Image.Name,
	})
	if err != nil {
		return sum, err
	}
	if res.Empty() {
		block("derive: nothing to do", false,
			kv("run", sum.RunID),
			kv("event", tc.Event),
			kv("outcome", "no-op, build and signing skipped"))
		log.Info("Unrecognized trigger, nothing to publish", "event", tc.Event)
		sum.Outcome = OutcomeNoOp
		return sum, nil
	}
	sum.Tags = res.Tags
	sum.SignTargets = res.SignTargets
	block("derive", false,
		kv("run", sum.RunID),
		kv("event", string(tc.Event)+"/"+string(tc.Ref)),
		kv("ref", tc.RefName),
		kv("tags", strings.Join(res.Tags, " ")),
		kv("sign targets", strings.Join(res.SignTargets, " ")),
		kv("version", res.Version))

	// Stage 2: build, and push unless this is a pull request.
	push := !tc.IsPullRequest()
	block("build", false,
		kv("run", sum.RunID),
		kv("push", push),
		kv("context", p.cfg.Build.Context),
		kv("recipe", p.cfg.Build.Recipe))
	built, err := p.builder.Build(ctx, build.Request{
		Tags:       res.Tags,
		Labels:     res.Labels,
		Push:       push,
		ContextDir: p.cfg.Build.Context,
		RecipePath: p.cfg.Build.Recipe,
	})
	if err != nil {
		block("build: failed", true, kv("run", sum.RunID), kv("error", err))
		return sum, &BuildError{Tags: res.Tags, Err: err}
	}
	if built.MetadataPath != "" {
		defer os.Remove(built.MetadataPath)
	}
	if !built.Pushed {
		block("publish: skipped", false,
			kv("run", sum.RunID),
			kv("reason", "image not pushed, nothing to sign"))
		log.Info("Build complete, not pushed", "tags", len(res.Tags))
		sum.Outcome = OutcomeBuilt
		return sum, nil
	}

	// Stage 3: extract the pushed digest from the metadata artifact.
	dgst, err := metadata.ExtractDigestFromFile(built.MetadataPath)
	if err != nil {
		artifact, _ := os.ReadFile(built.MetadataPath)
		block("digest: failed", true,
			kv("run", sum.RunID),
			kv("metadata", built.MetadataPath),
			kv("artifact", string(artifact)),
			kv("error", err))
		return sum, &DigestError{MetadataPath: built.MetadataPath, Artifact: string(artifact), Err: err}
	}
	sum.Digest = dgst.String()
	block("digest", false, kv("run", sum.RunID), kv("digest", dgst))

	// Stage 4: sign every release tag against the immutable digest.
	if err := p.signStage(ctx, &sum, res.SignTargets, dgst); err != nil {
		return sum, err
	}

	log.Info("Release published", "digest", sum.Digest, "signed", len(sum.Signed))
	sum.Outcome = OutcomePublished
	return sum, nil
}

// signStage runs the signing stage for a pushed, digested build. The
// sign-target invariant is asserted before the enabled check: a pushed
// build with no sign targets is a derivation defect whether or not
// signatures were requested.
func (p *Pipeline) signStage(ctx context.Context, sum *Summary, targets []string, dgst digest.Digest) error {
	if len(targets) == 0 {
		block("sign: inconsistency", true,
			kv("run", sum.RunID),
			kv("digest", dgst),
			kv("error", "pushed build with no sign targets"))
		return &InconsistencyError{Digest: dgst.String()}
	}
	if !p.cfg.Sign.Enabled {
		logger.With("run_id", sum.RunID).Warn("Signing disabled by configuration", "targets", len(targets))
		return nil
	}

	block("sign", false,
		kv("run", sum.RunID),
		kv("digest", dgst),
		kv("targets", strings.Join(targets, " ")))
	results, err := p.signer.Sign(ctx, targets, dgst)
	var failed []string
	for _, r := range results {
		if r.Err == nil {
			sum.Signed = append(sum.Signed, r.Ref)
		} else {
			failed = append(failed, r.Ref)
		}
	}
	if err != nil {
		block("sign: failed", true,
			kv("run", sum.RunID),
			kv("signed", strings.Join(sum.Signed, " ")),
			kv("failed", strings.Join(failed, " ")))
		return &SigningError{Signed: sum.Signed, Failed: failed, Err: err}
	}
	return nil
}
