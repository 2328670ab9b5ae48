// Package hooks holds user-registered write-path extension points.
//
// A Registry keeps, for every (Operation, Phase) pair, two append-only
// lists: hooks that run in series and hooks that run as a parallel group.
// The registry only stores hooks; running them is the write pipeline's job.
package hooks
