package generation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jackzampolin/storyboard/internal/types"
)

// videoPlan is the conditioning for one video call.
type videoPlan struct {
	refs  []string
	start string
	end   string
}

// planVideo picks the video conditioning from the shot's mode. In
// references mode the target's own list is used and the start and end
// frames are its first and last elements. Otherwise the list is the
// mode's frames with keyframes in between. refs is filled in even when a
// required frame is missing.
func planVideo(tr *targetRun, target *types.Target) (videoPlan, error) {
	shot := tr.shot
	mode := shot.Mode()

	if mode == types.ModeReferences {
		list := tr.pc.resolver.Resolve(target, availableFrames(shot))
		if len(list) == 0 {
			return videoPlan{}, fmt.Errorf("%w: shot %s has no video references", ErrMissingFrame, shot.ID)
		}
		return videoPlan{refs: list, start: list[0], end: list[len(list)-1]}, nil
	}

	var plan videoPlan
	var missing []string
	if mode.NeedsStart() {
		plan.start = shot.StartFrameURL
		if plan.start == "" {
			missing = append(missing, "start")
		}
	}
	if mode.NeedsEnd() {
		plan.end = shot.EndFrameURL
		if plan.end == "" {
			missing = append(missing, "end")
		}
	}
	plan.refs = appendUnique(nil, plan.start)
	plan.refs = appendUnique(plan.refs, shot.Keyframes...)
	plan.refs = appendUnique(plan.refs, plan.end)

	if len(missing) > 0 {
		return plan, fmt.Errorf("%w: shot %s has no %s frame", ErrMissingFrame, shot.ID, strings.Join(missing, " or "))
	}
	return plan, nil
}

// availableFrames returns the shot's existing start frame, keyframes and
// end frame in that order.
func availableFrames(shot *types.Shot) []string {
	if shot == nil {
		return nil
	}
	out := appendUnique(nil, shot.StartFrameURL)
	out = appendUnique(out, shot.Keyframes...)
	return appendUnique(out, shot.EndFrameURL)
}

func appendUnique(list []string, urls ...string) []string {
	for _, url := range urls {
		if url != "" && !slices.Contains(list, url) {
			list = append(list, url)
		}
	}
	return list
}
