package app

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nicdgonzalez/axiom/internal/paper"
	"github.com/nicdgonzalez/axiom/internal/resolve"
)

// parseTargetArgs turns the optional VERSION and BUILD arguments into a
// resolver request.
func parseTargetArgs(args []string) (resolve.Request, error) {
	var req resolve.Request
	if len(args) > 0 {
		req.Version = args[0]
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return resolve.Request{}, fmt.Errorf("invalid build number %q", args[1])
		}
		req.Build = n
	}
	return req, nil
}

// resolveTarget loads the catalog state req needs and resolves it. With
// refresh the oracle is asked again; otherwise cached answers are used.
func (e *env) resolveTarget(ctx context.Context, req resolve.Request, refresh bool) (paper.Target, error) {
	snap, err := e.catalog.Load(ctx, req, refresh)
	if err != nil {
		return paper.Target{}, err
	}
	if snap.Stale {
		fmt.Fprintln(e.errOut, "warning: the PaperMC API is unreachable, resolving from cached data")
	}
	target, err := resolve.Resolve(snap, req)
	if err != nil {
		return paper.Target{}, err
	}
	e.log.Debug().Str("target", target.String()).Str("channel", string(target.Channel)).Msg("resolved target")
	return target, nil
}

func describeTarget(t paper.Target) string {
	if t.Experimental() {
		return t.String() + " [experimental]"
	}
	return t.String()
}
