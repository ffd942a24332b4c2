// Package presence merges Track Source reports into a single desired rich presence.
//
// The [Reconciler] keeps a [Clock] per track so the elapsed time shown by the sink follows the
// player through pauses, resumes, and seeks:
//
//   - a new track resets the clock to now minus the reported position
//   - pausing records the pause instant and drops the end timestamp
//   - resuming shifts the start forward by the paused duration
//   - a reported position that disagrees with the clock by more than the drift tolerance
//     resynchronizes the start; smaller jitter is ignored so the sink is not spammed
//
// A short grace window after a track change forces the playing indicator, absorbing the brief
// "paused" report players emit while the next track buffers.
package presence
