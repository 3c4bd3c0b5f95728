// Package process provides a runtime implementation that supervises local processes.
//
// Children started with runtime.StreamPipe are placed in their own process group
// so that Terminate can signal the child together with anything it spawned. Full
// process-group termination is only guaranteed on Linux and other unix systems,
// where the runtime relies on job-control semantics to deliver signals to every
// member of the group. On Windows the runtime offers best-effort semantics: the
// direct child is interrupted and, if necessary, killed, but grandchildren may
// survive and must be cleaned up separately.
//
// Output of piped children is exposed through in-memory pipes. Callers must drain
// stdout and stderr concurrently; a stream that is never read eventually stalls
// the child once the operating system pipe buffer fills.
package process
