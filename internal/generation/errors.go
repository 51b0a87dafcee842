package generation

import "errors"

var (
	// ErrSlotBusy is returned when the same (target, kind) slot is already generating.
	ErrSlotBusy = errors.New("generation already in progress for this target")
	// ErrNothingToInherit is returned when a start frame asks to inherit
	// but the previous shot has no end frame.
	ErrNothingToInherit = errors.New("nothing to inherit from previous shot")
	// ErrRenderFailed wraps the last render error after all attempts fail.
	ErrRenderFailed = errors.New("render failed")
	// ErrCancelled is returned when the run was cancelled before an attempt.
	ErrCancelled = errors.New("generation cancelled")
	// ErrMissingFrame is returned when a video needs a frame that does not exist yet.
	ErrMissingFrame = errors.New("required frame missing")
	// ErrEmptyPrompt is returned when a target has no prompt to render.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrInvalidTarget is returned for target ids without a known kind suffix.
	ErrInvalidTarget = errors.New("invalid target id")
)
