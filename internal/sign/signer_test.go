package sign

import (
	"context"
	"errors"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDigest = "sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

// fakeRunner records every invocation and fails the refs told to fail.
type fakeRunner struct {
	calls  [][]string
	failOn map[string]error
}

func (f *fakeRunner) Run(_ context.Context, argv []string) error {
	f.calls = append(f.calls, argv)
	if len(argv) > 0 {
		if err, ok := f.failOn[argv[len(argv)-1]]; ok {
			return err
		}
	}
	return nil
}

func TestSignAllTargets(t *testing.T) {
	runner := &fakeRunner{}
	s := New([]string{"cosign", "sign", "--yes"}, runner)

	targets := []string{"ghcr.io/acme/widget:v1.2.3", "ghcr.io/acme/widget:latest"}
	results, err := s.Sign(context.Background(), targets, digest.Digest(testDigest))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "ghcr.io/acme/widget:v1.2.3@"+testDigest, results[0].Ref)
	assert.Equal(t, "ghcr.io/acme/widget:latest@"+testDigest, results[1].Ref)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}

	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{"cosign", "sign", "--yes", results[0].Ref}, runner.calls[0])
}

func TestSignPartialFailureAttemptsAll(t *testing.T) {
	failRef := "ghcr.io/acme/widget:1@" + testDigest
	runner := &fakeRunner{failOn: map[string]error{failRef: errors.New("oidc token expired")}}
	s := New([]string{"cosign", "sign", "--yes"}, runner)

	targets := []string{
		"ghcr.io/acme/widget:v1.2.3",
		"ghcr.io/acme/widget:1",
		"ghcr.io/acme/widget:latest",
	}
	results, err := s.Sign(context.Background(), targets, digest.Digest(testDigest))

	require.ErrorIs(t, err, ErrSigning)
	assert.Contains(t, err.Error(), failRef, "failed ref must be attributable")
	assert.Len(t, runner.calls, 3, "every target is attempted despite the failure")

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
}

func TestSignRejectsNonCanonicalDigest(t *testing.T) {
	s := New([]string{"cosign", "sign"}, &fakeRunner{})
	_, err := s.Sign(context.Background(), []string{"ghcr.io/acme/widget:latest"}, digest.Digest("sha256:short"))
	assert.Error(t, err)
}

func TestRef(t *testing.T) {
	assert.Equal(t,
		"ghcr.io/acme/widget:v1.2.3@"+testDigest,
		Ref("ghcr.io/acme/widget:v1.2.3", digest.Digest(testDigest)))
}
