// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package uloop

// loopOptions holds configuration resolved at New, grounded on the
// teacher's loopOptions/LoopOption pattern (options.go), generalized from
// JS-event-loop knobs (strict microtask ordering, fast path mode) to this
// domain's ambient-stack knobs (logger, batch size, test hooks).
type loopOptions struct {
	logger    *Logger
	loggerSet bool
	maxEvents int
	testHooks *loopTestHooks
}

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger sets the structured logger used for diagnostics (reap
// failures, run_events failures). A nil logger disables logging entirely.
func WithLogger(logger *Logger) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		opts.loggerSet = true
		return nil
	}}
}

// WithMaxEvents overrides the dispatcher's pre-fetch batch size (spec.md
// §6's MAX_EVENTS, default 10). Mainly useful for tests that want to force
// multiple Fetch rounds with a small number of fds. Values above MaxEvents
// have no further effect: each backend reads at most MaxEvents events per
// Fetch.
func WithMaxEvents(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.maxEvents = n
		return nil
	}}
}

// loopTestHooks provides injection points for deterministic testing,
// grounded on the teacher's loopTestHooks (loop.go) — generalized from
// poll-transition hooks to this domain's run-loop checkpoints.
type loopTestHooks struct {
	// BeforeRunEvents is called immediately before each run_events call
	// within RunTimeout's loop body.
	BeforeRunEvents func()
	// AfterDrainTimeouts is called after each timeout-drain pass, with the
	// ms until the next pending timeout (-1 if none).
	AfterDrainTimeouts func(nextMs int64)
}

// WithTestHooks installs deterministic test checkpoints. Not part of the
// stable API surface; exported so this package's own internal tests can
// reach it through the public LoopOption constructor, matching the
// teacher's testing posture.
func WithTestHooks(hooks *loopTestHooks) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.testHooks = hooks
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		maxEvents: MaxEvents,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
