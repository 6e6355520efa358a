// ABOUTME: Gain calculation package
// ABOUTME: Album-grouped ReplayGain measurement on a background worker pool
// Package gain computes ReplayGain-style track and album gains.
//
// Items are queued with Enqueue. A single worker groups them by channel
// count, sample rate and album, then measures each group's tracks in
// parallel. Track gain is the reference loudness minus the track's
// integrated loudness; album gain uses the joint loudness of the whole
// group. Results are written to the library and kept as per-item estimates
// for the playback engine.
package gain
