// Package timeline implements a windowed, query-filtered, cached reader
// over the ordered event stream of an investigation container.
//
// The Reader materializes contiguous row windows [startRow, endRow) of a
// virtual event table. When a window ends with more events remaining, the
// not-yet-consumed iterator is checkpointed in a TTL cache keyed by
// (container, query, endRow), so a caller scrolling forward resumes the
// scan instead of restarting it. The cache is purely an optimization: a
// missing or expired checkpoint degrades to a fresh query that skips
// forward from sequence zero.
//
// Rendering, navigation and every other presentation concern live in the
// hosting console, outside this module.
package timeline
