// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and sample/gain conversion functions
// Package audio provides fundamental audio types and utilities.
//
// The playback pipeline works on interleaved float32 samples in [-1,1].
// Device backends that need integer output use the 24-bit int32 helpers:
//   - float32 ↔ 24-bit int32 conversions
//   - 16-bit ↔ 24-bit conversions
//   - int32 ↔ packed byte conversions
//
// Gains are expressed in decibels and converted with DBToLinear.
//
// Example:
//
//	format := audio.Format{
//	    Codec:      "flac",
//	    SampleRate: 44100,
//	    Channels:   2,
//	    BitDepth:   16,
//	}
//
//	frames := format.FramesFor(10 * time.Second)
//	mul := audio.DBToLinear(-3.0)
package audio
