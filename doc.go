// Package lsm is the storage core of an embedded log-structured-merge
// key-value engine. Data arrives as immutable sorted segments, segments
// accumulate under a single-writer commit protocol, and a background merge
// folds them back into one.
//
// See the [github.com/halcwb/LSM/cursor] package for the merged,
// bidirectionally navigable view over the committed segments.
package lsm
