// Package backend starts and supervises the Python backend.
//
// A Launcher decides how the backend is invoked. It resolves the project
// root from the working directory, checks once for the dependency manager,
// and picks a Strategy:
//
//	StrategyManaged: poetry run python -m voxgrep.server
//	StrategyDirect:  python3 -m voxgrep.server
//
// The long-running service started by Launcher.Launch is held by a
// Supervisor, which kills it exactly once on teardown.
//
// A Runner executes one-shot backend commands (desktop/desktop_api.py
// download|search|list ...) through the same Launcher, forwarding each
// stdout line to a bridge.Emitter as it arrives:
//
//	r := backend.NewRunner(launcher, cfg.MaxCommands, log)
//	res, err := r.Run(ctx, []string{"search", "hello"}, emitter)
//
// Runs are bounded by the command limit; a run that would exceed it fails
// with ErrBusy.
package backend
