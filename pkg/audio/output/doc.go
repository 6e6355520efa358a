// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Backend interface and device, file and null sinks
// Package output provides audio playback backends.
//
// A Backend is opened with a format and a Renderer. Depending on the mode,
// the renderer is either called from the device's own callback thread
// (exclusive, direct) or from a feeder goroutine that keeps a RingBuffer
// ahead of the device (shared). Renderers must not block.
//
// Example:
//
//	out, err := output.New(output.ModeShared, output.Options{BufferMS: 100}, logger)
//	err = out.Open(format, func(dst []float32) int {
//	    return engine.Render(dst)
//	})
//	err = out.Start()
package output
