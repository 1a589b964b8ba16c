package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds used across the resolver, parser and tasks. Callers wrap
// these with fmt.Errorf("...: %w", ...) so errors.Is keeps working at
// any depth of the chain.
var (
	ErrShape         = errors.New("invalid shape")
	ErrUnknownTag    = errors.New("unknown tag")
	ErrUnknownTask   = errors.New("unknown task")
	ErrMissingField  = errors.New("missing field")
	ErrEmptyGroup    = errors.New("empty task group")
	ErrRemoteConnect = errors.New("remote connect failed")
	ErrRemoteCommand = errors.New("remote command failed")
	ErrRemoteChannel = errors.New("remote channel failed")
	ErrLocalIO       = errors.New("local io failed")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
)

// Wrap attaches a contextual message and an error kind to cause.
// The kind and the cause both stay reachable via errors.Is/As.
func Wrap(kind error, cause error, format string, a ...interface{}) error {
	msg := fmt.Sprintf(format, a...)
	if cause == nil {
		return fmt.Errorf("%s: %w", msg, kind)
	}
	return &wrapped{kind: kind, cause: cause, msg: msg}
}

// New creates a leaf error of the given kind.
func New(kind error, format string, a ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), kind)
}

type wrapped struct {
	kind  error
	cause error
	msg   string
}

func (w *wrapped) Error() string {
	return w.msg + ": " + w.cause.Error()
}

func (w *wrapped) Unwrap() []error {
	return []error{w.kind, w.cause}
}

// RenderChain formats err as an indented "caused by" listing, one line
// per wrapping layer, innermost cause last.
func RenderChain(err error) string {
	var b strings.Builder
	depth := 0
	for err != nil {
		if depth > 0 {
			b.WriteString("\n")
			b.WriteString(strings.Repeat("  ", depth))
			b.WriteString("caused by: ")
		}
		b.WriteString(headline(err))
		err = next(err)
		depth++
	}
	return b.String()
}

// headline returns only the context added by this layer, without the
// repeated text of the layers below it.
func headline(err error) string {
	full := err.Error()
	if n := next(err); n != nil {
		if cut, ok := strings.CutSuffix(full, ": "+n.Error()); ok {
			return cut
		}
	}
	return full
}

// next walks to the causal child, skipping the kind sentinel when the
// error carries both.
func next(err error) error {
	switch e := err.(type) {
	case *wrapped:
		return e.cause
	case interface{ Unwrap() error }:
		u := e.Unwrap()
		// sentinels are chain terminators, not causes worth a line
		if isKind(u) {
			return nil
		}
		return u
	case interface{ Unwrap() []error }:
		us := e.Unwrap()
		for _, u := range us {
			if !isKind(u) {
				return u
			}
		}
		return nil
	}
	return nil
}

func isKind(err error) bool {
	switch err {
	case ErrShape, ErrUnknownTag, ErrUnknownTask, ErrMissingField,
		ErrEmptyGroup, ErrRemoteConnect, ErrRemoteCommand,
		ErrRemoteChannel, ErrLocalIO, ErrAlreadyExists, ErrNotFound:
		return true
	}
	return false
}
