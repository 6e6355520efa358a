// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between sample rates and playback speeds
// Package resample provides streaming sample rate conversion.
//
// Uses linear interpolation and keeps the last frame of each chunk so
// successive calls produce a continuous signal. The speed setting is
// used for pitch adjustment.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out = r.Process(inputSamples, out[:0])
package resample
