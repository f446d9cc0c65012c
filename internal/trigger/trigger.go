// Package trigger captures the CI event that started a pipeline run.
// The Context is built once from the event source's environment and is
// never mutated afterwards; everything downstream derives from it.
package trigger

import (
	"os"
	"strconv"
	"strings"
)

// EventKind classifies the event that triggered the run.
type EventKind string

const (
	EventPush         EventKind = "push"
	EventPullRequest  EventKind = "pull_request"
	EventManual       EventKind = "manual"
	EventUnrecognized EventKind = "unrecognized"
)

// RefKind classifies the git ref the run was triggered on.
type RefKind string

const (
	RefBranch RefKind = "branch"
	RefTag    RefKind = "tag"
)

// Context is an immutable snapshot of the trigger event metadata.
type Context struct {
	Event      EventKind
	Ref        RefKind
	RefName    string
	CommitSHA  string
	Actor      string
	Repository string // "owner/name" path
	ServerURL  string
	PRNumber   int    // pull_request events only
	PRBranch   string // pull_request events only
}

// IsPullRequest reports whether the run was triggered by a pull request.
func (c Context) IsPullRequest() bool {
	return c.Event == EventPullRequest
}

// Pushes reports whether the run is a push-style event whose image may be
// published. Manual dispatches behave like pushes on the current ref.
func (c Context) Pushes() bool {
	return c.Event == EventPush || c.Event == EventManual
}

// FromEnv builds a Context from GitHub-Actions-style environment
// variables. Unknown event names yield EventUnrecognized, which the
// pipeline treats as a no-op rather than an error.
func FromEnv() Context {
	c := Context{
		RefName:    os.Getenv("GITHUB_REF_NAME"),
		CommitSHA:  os.Getenv("GITHUB_SHA"),
		Actor:      os.Getenv("GITHUB_ACTOR"),
		Repository: os.Getenv("GITHUB_REPOSITORY"),
		ServerURL:  os.Getenv("GITHUB_SERVER_URL"),
	}

	switch os.Getenv("GITHUB_EVENT_NAME") {
	case "push":
		c.Event = EventPush
	case "pull_request", "pull_request_target":
		c.Event = EventPullRequest
	case "workflow_dispatch":
		c.Event = EventManual
	default:
		c.Event = EventUnrecognized
	}

	if os.Getenv("GITHUB_REF_TYPE") == "tag" {
		c.Ref = RefTag
	} else {
		c.Ref = RefBranch
	}

	if c.Event == EventPullRequest {
		c.PRBranch = os.Getenv("GITHUB_HEAD_REF")
		c.PRNumber = prNumberFromRef(os.Getenv("GITHUB_REF"))
	}

	return c
}

// prNumberFromRef extracts the PR number from a "refs/pull/<n>/merge" ref.
// Returns 0 when the ref does not carry one.
func prNumberFromRef(ref string) int {
	parts := strings.Split(ref, "/")
	if len(parts) < 3 || parts[0] != "refs" || parts[1] != "pull" {
		return 0
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0
	}
	return n
}
