package fault

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewCarriesKind(t *testing.T) {
	err := New(ErrMissingField, "job %q has no body", "deploy")
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("kind not reachable via errors.Is: %v", err)
	}
	if !strings.Contains(err.Error(), `job "deploy"`) {
		t.Errorf("context message lost: %v", err)
	}
}

func TestWrapKeepsKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrRemoteConnect, cause, "dial %s", "10.0.0.5:22")

	if !errors.Is(err, ErrRemoteConnect) {
		t.Errorf("kind not reachable: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause not reachable: %v", err)
	}
	if got := err.Error(); got != "dial 10.0.0.5:22: connection refused" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestWrapNilCause(t *testing.T) {
	err := Wrap(ErrLocalIO, nil, "read jobs.yaml")
	if !errors.Is(err, ErrLocalIO) {
		t.Errorf("kind not reachable: %v", err)
	}
}

func TestRenderChainIndentsLayers(t *testing.T) {
	inner := errors.New("no such file")
	mid := Wrap(ErrLocalIO, inner, "read local file")
	outer := fmt.Errorf("task 2 of job \"deploy\" failed: %w", mid)

	got := RenderChain(outer)
	want := "task 2 of job \"deploy\" failed" +
		"\n  caused by: read local file" +
		"\n    caused by: no such file"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderChainStopsAtKind(t *testing.T) {
	err := New(ErrUnknownTask, "mystery entry")
	got := RenderChain(err)
	if strings.Contains(got, "caused by") {
		t.Errorf("kind sentinel should not render as a cause line: %q", got)
	}
}

func TestRenderChainSingleError(t *testing.T) {
	err := errors.New("flat")
	if got := RenderChain(err); got != "flat" {
		t.Errorf("got %q", got)
	}
}
