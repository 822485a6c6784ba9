package bridge

import (
	"context"
	"sync"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/core/logger"
)

// Kind classifies operations for path selection. Each kind carries its
// own preferred path; a failing auth path never drags list traffic
// with it.
type Kind string

// the operation kinds
const (
	KindAuth   Kind = "auth"
	KindList   Kind = "list"
	KindRead   Kind = "read"
	KindMutate Kind = "mutate"
)

// Intent describes one logical operation before any path is chosen.
type Intent struct {
	Kind Kind
	Name string
	// Marker makes a mutation safe to replay on the other path. A
	// mutation without a marker is never retried.
	Marker string
}

// reconciliation is the transient state of one intent. It lives for
// the duration of a single call and is never persisted.
type reconciliation struct {
	intent         Intent
	attemptedPaths []Path
	lastError      error
}

// selector keeps the preferred path per operation kind. After a
// successful fallback the preference flips and stays flipped.
type selector struct {
	mutex      sync.RWMutex
	preference map[Kind]Path
}

func newSelector(initial Path) *selector {
	return &selector{
		preference: map[Kind]Path{
			KindAuth:   initial,
			KindList:   initial,
			KindRead:   initial,
			KindMutate: initial,
		},
	}
}

func (s *selector) preferred(kind Kind) Path {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.preference[kind]
}

func (s *selector) prefer(kind Kind, path Path) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.preference[kind] = path
}

func otherPath(path Path) Path {
	if path == PathPrimary {
		return PathSecondary
	}
	return PathPrimary
}

// do runs the intent against the preferred path, with at most one
// fallback to the other path. Only retryable failures fall back, and
// mutations only when they carry a marker. When the fallback succeeds,
// the kind's preference flips to the path that worked; when it fails
// too, the fallback's error is surfaced.
func (s *selector) do(ctx context.Context, intent Intent, call func(ctx context.Context, path Path) error) error {
	state := reconciliation{intent: intent}

	first := s.preferred(intent.Kind)
	state.attemptedPaths = append(state.attemptedPaths, first)
	err := call(ctx, first)
	if err == nil {
		return nil
	}
	state.lastError = err

	civicErr := civic.AsError(err)
	if civicErr == nil || !civicErr.Retryable() {
		return err
	}
	if intent.Kind == KindMutate && intent.Marker == "" {
		return err
	}

	second := otherPath(first)
	logger.FromContext(ctx).Warnf("%s failed on %s path, retrying on %s: %v",
		intent.Name, first, second, err)
	state.attemptedPaths = append(state.attemptedPaths, second)
	err = call(ctx, second)
	if err != nil {
		state.lastError = err
		return err
	}
	s.prefer(intent.Kind, second)
	return nil
}
