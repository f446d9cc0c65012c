// Package sign binds each release tag to the pushed image's digest and
// requests a keyless signature from the external signer tool. The
// signature attaches to the immutable digest, not the mutable tag, so
// retagging cannot invalidate trust.
package sign

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/shipway/shipway/internal/run"
	"github.com/shipway/shipway/pkg/logger"
	"github.com/shipway/shipway/pkg/validation"
)

// ErrSigning is the base error for one or more failed signing requests.
var ErrSigning = errors.New("signing failed")

// Result records one signing attempt, attributable by reference.
type Result struct {
	Ref string // "name:tag@sha256:..."
	Err error  // nil on success
}

// Signer invokes the external keyless signer once per target.
type Signer struct {
	tool   []string // signer argv prefix, e.g. ["cosign", "sign", "--yes"]
	runner run.Runner
}

// New creates a Signer for the given tool argv prefix.
func New(tool []string, runner run.Runner) *Signer {
	if runner == nil {
		runner = run.ExecRunner{}
	}
	return &Signer{tool: tool, runner: runner}
}

// Sign requests a signature for every target bound to dgst. All targets
// are attempted even when one fails; the returned error, if any, lists
// exactly which references failed. The digest must be canonical — the
// caller guarantees a pushed, digested build before invoking this.
func (s *Signer) Sign(ctx context.Context, targets []string, dgst digest.Digest) ([]Result, error) {
	if !validation.IsCanonicalDigest(dgst.String()) {
		return nil, fmt.Errorf("refusing to sign against non-canonical digest %q", dgst)
	}

	results := make([]Result, 0, len(targets))
	var failed []string
	for _, target := range targets {
		ref := Ref(target, dgst)
		logger.Info("Signing", "ref", ref)

		argv := append(append([]string{}, s.tool...), ref)
		err := s.runner.Run(ctx, argv)
		results = append(results, Result{Ref: ref, Err: err})
		if err != nil {
			logger.Error("Signing failed", "ref", ref, "error", err)
			failed = append(failed, ref)
		}
	}

	if len(failed) > 0 {
		return results, fmt.Errorf("%w for %d of %d targets: %s",
			ErrSigning, len(failed), len(targets), strings.Join(failed, ", "))
	}
	return results, nil
}

// Ref builds the immutable signing reference "name:tag@digest" for a
// derived tag.
func Ref(target string, dgst digest.Digest) string {
	return target + "@" + dgst.String()
}
