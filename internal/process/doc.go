// Package process wraps exec.Cmd with lifecycle tracking for the backend
// processes voxdesk starts.
//
// A Process pipes the child's stdout and stderr, records its exit code, and
// closes its Done channel once the child has exited and all of its output
// has been handed to the readers. Callers must drain both Stdout and Stderr
// or the process never reaches Done.
//
// # Spawning
//
// Spawn starts a single process whose lifetime the caller owns, such as the
// long-running backend service:
//
//	proc, err := process.Spawn(uuid.NewString(), "backend", cmd)
//
// # Supervisor
//
// A Supervisor tracks short-lived processes and bounds how many may run at
// once:
//
//	sup := process.NewSupervisor(process.WithMaxProcesses(1))
//	defer sup.Shutdown(5 * time.Second)
//
//	proc, err := sup.Start("search", cmd)
//	if errors.Is(err, process.ErrProcessLimit) {
//	    // another command is still running
//	}
//
// Both Supervisor and Process are safe for concurrent use.
package process
