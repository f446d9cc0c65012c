// Package derive turns a trigger context into the tag list, OCI label
// set and sign-target list for one release. It is pure: no I/O, no
// clock access beyond the injected timestamp, so every branch is unit
// testable without a builder or registry.
package derive

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	specsv1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/shipway/shipway/internal/trigger"
)

var (
	// ErrDuplicateTag signals two derivation branches produced the same
	// fully-qualified reference, which is always a derivation bug.
	ErrDuplicateTag = errors.New("duplicate tag derived")

	// ErrIncompleteContext signals the trigger context is missing a field
	// the matched branch requires (commit SHA, PR number or PR branch).
	ErrIncompleteContext = errors.New("incomplete trigger context")
)

// Options configures a derivation run.
type Options struct {
	Registry string    // e.g. "ghcr.io"
	Image    string    // e.g. "acme/widget"
	Now      time.Time // zero means time.Now()
}

// Result is the derived release metadata for one run.
type Result struct {
	Tags        []string          // fully qualified, ordered, unique
	Labels      map[string]string // OCI annotation keys
	SignTargets []string          // subset of Tags eligible for signing
	Version     string            // value of the version label
}

// Empty reports whether the derivation produced nothing to build, the
// no-op case for unrecognized events.
func (r Result) Empty() bool { return len(r.Tags) == 0 }

// Derive computes tags, labels and sign targets from the trigger
// context. An unrecognized event yields an empty Result and no error:
// the caller short-circuits the run instead of failing it.
func Derive(tc trigger.Context, opts Options) (Result, error) {
	if tc.Event == trigger.EventUnrecognized {
		return Result{}, nil
	}

	repo := opts.Registry + "/" + opts.Image

	var res Result
	switch {
	case tc.IsPullRequest():
		if tc.PRNumber == 0 || tc.PRBranch == "" || tc.CommitSHA == "" {
			return Result{}, fmt.Errorf("%w: pull request needs number, branch and commit SHA", ErrIncompleteContext)
		}
		res.Tags = []string{fmt.Sprintf("%s:pr-%d-%s-%s", repo, tc.PRNumber, Sanitize(tc.PRBranch), tc.CommitSHA)}
		res.Version = fmt.Sprintf("pr-%d", tc.PRNumber)
		// PR images are never pushed, so never signed.

	case tc.Pushes():
		if tc.CommitSHA == "" {
			return Result{}, fmt.Errorf("%w: push event without commit SHA", ErrIncompleteContext)
		}
		shaTag := repo + ":" + tc.CommitSHA
		res.Tags = append(res.Tags, shaTag)
		res.SignTargets = append(res.SignTargets, shaTag)

		switch {
		case tc.Ref == trigger.RefTag && IsReleaseTag(tc.RefName):
			v := semver.MustParse(tc.RefName)
			for _, t := range []string{
				tc.RefName,
				fmt.Sprintf("%d.%d", v.Major(), v.Minor()),
				fmt.Sprintf("%d", v.Major()),
			} {
				ref := repo + ":" + t
				res.Tags = append(res.Tags, ref)
				res.SignTargets = append(res.SignTargets, ref)
			}
			res.Version = tc.RefName
		case tc.RefName == "main":
			ref := repo + ":latest"
			res.Tags = append(res.Tags, ref)
			res.SignTargets = append(res.SignTargets, ref)
			res.Version = "latest-" + tc.CommitSHA
		default:
			// Arbitrary branch push: the commit-SHA tag alone.
			res.Version = tc.CommitSHA
		}
	}

	if err := checkUnique(res.Tags); err != nil {
		return Result{}, err
	}

	res.Labels = labels(tc, res.Version, opts.Now)
	return res, nil
}

// labels builds the OCI annotation set every image carries: source URL,
// creation timestamp, revision, and the per-branch version value.
func labels(tc trigger.Context, version string, now time.Time) map[string]string {
	if now.IsZero() {
		now = time.Now()
	}
	return map[string]string{
		specsv1.AnnotationSource:   tc.ServerURL + "/" + tc.Repository,
		specsv1.AnnotationCreated:  now.UTC().Format(time.RFC3339),
		specsv1.AnnotationRevision: tc.CommitSHA,
		specsv1.AnnotationVersion:  version,
	}
}

func checkUnique(tags []string) error {
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTag, t)
		}
		seen[t] = struct{}{}
	}
	return nil
}

// Sanitize maps a ref name onto the tag-safe alphabet: every character
// outside [A-Za-z0-9.-] becomes '-'. Idempotent.
func Sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '-'
		}
	}, name)
}

// IsReleaseTag reports whether ref is a strict release tag: a leading
// 'v' followed by exactly major.minor.patch, each numeric, with no
// pre-release or build metadata. "v1.2.3" yes; "v1.2", "v1.2.3-rc1",
// "v1.2.x" no.
func IsReleaseTag(ref string) bool {
	rest, ok := strings.CutPrefix(ref, "v")
	if !ok {
		return false
	}
	v, err := semver.StrictNewVersion(rest)
	if err != nil {
		return false
	}
	return v.Prerelease() == "" && v.Metadata() == ""
}
