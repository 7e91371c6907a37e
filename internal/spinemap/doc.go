// Package spinemap provides scalable concurrent maps addressed by dense
// non-negative integer keys.
//
// A key is split into (spine index = key / spineSize, offset = key % spineSize).
// Spines are fixed-size slot arrays allocated lazily the first time a key in
// their range is written; every slot starts out holding the absent sentinel.
// Reads and writes on a slot are single atomic operations, and updates are
// compare-and-swap retry loops, so there is no global lock on the hot path.
// Only spine allocation takes a mutex.
//
// Writes more than two spines beyond the currently allocated spine count are
// rejected with a SpineRangeError. Keys are expected to be dense; a far-away
// key is a programming error, not a request to allocate memory.
//
// Iteration is lazy and restartable but not linearizable: a concurrent writer
// may or may not be observed by an iteration already in progress.
package spinemap
