// ABOUTME: Audio decoder package for local media files
// ABOUTME: Provides MP3, FLAC, Opus, Vorbis, WAV, AIFF and raw PCM decoders
// Package decode opens media files and produces interleaved float32 PCM.
//
// Decoders are looked up by file extension through a Registry. Items that
// exist in several locations can be opened with OpenFirst, which tries each
// path in turn.
//
// Example:
//
//	reg := decode.NewDefaultRegistry()
//	dec, err := reg.OpenFirst(item.Filename, item.Duplicates...)
//	if err != nil {
//	    return err
//	}
//	defer dec.Close()
//
//	buf := make([]float32, 4096*dec.Format().Channels)
//	frames, err := dec.Read(buf)
package decode
