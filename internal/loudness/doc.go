// ABOUTME: Loudness measurement package
// ABOUTME: Integrated loudness and peak for ReplayGain-style normalization
// Package loudness implements EBU R128 / ITU-R BS.1770 integrated loudness.
//
// A Meter is fed interleaved float32 audio. Integrated returns the gated
// loudness of everything added so far; Joint measures several meters as a
// single programme, which is how album loudness is derived.
package loudness
