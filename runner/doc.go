// Package runner provides the components that execute a ci-runner pipeline.
//
// The main components are:
//   - ProcessExecutor: spawns one external command, waits for it and maps its exit status
//   - CheckError: reports the outcome of a checked step on the console
//   - DiscoverSamples: lists the sample programs to execute
//   - Runner: runs install, test and sample steps in order, stopping at the first failure
//
// Every step runs synchronously; nothing in this package starts goroutines.
package runner
