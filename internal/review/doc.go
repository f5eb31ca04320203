// Package review composes the admission queue with ordered per-session frame
// delivery. Each review session carries a monotonically increasing sequence
// starting at 1; frames produced out of order are held until the gap fills so
// watchers only ever observe a contiguous ascending sequence. When live
// streaming is disabled the coordinator synthesizes an equivalent frame
// sequence through the fallback path, marked with delivery "fallback".
package review
