// ABOUTME: Float to integer PCM packing for device buffers
// ABOUTME: Writes little-endian 16, 24 and 32-bit samples
package output

import "github.com/harperreed/wavedeck/pkg/audio"

// write16Bit converts float samples to 16-bit output
func write16Bit(output []byte, samples []float32) {
	for i, s := range samples {
		sample16 := audio.SampleToInt16(audio.FloatToSample(s))
		output[i*2] = byte(sample16)
		output[i*2+1] = byte(sample16 >> 8)
	}
}

// write24Bit converts float samples to 24-bit output (3 bytes per sample)
func write24Bit(output []byte, samples []float32) {
	for i, s := range samples {
		b := audio.SampleTo24Bit(audio.FloatToSample(s))
		output[i*3] = b[0]
		output[i*3+1] = b[1]
		output[i*3+2] = b[2]
	}
}

// write32Bit converts float samples to 32-bit output
func write32Bit(output []byte, samples []float32) {
	for i, s := range samples {
		// 24-bit value in the upper bits of the 32-bit container
		sample32 := audio.FloatToSample(s) << 8
		output[i*4] = byte(sample32)
		output[i*4+1] = byte(sample32 >> 8)
		output[i*4+2] = byte(sample32 >> 16)
		output[i*4+3] = byte(sample32 >> 24)
	}
}

// floatsToInts converts float samples to integers at the given bit depth
func floatsToInts(dst []int, samples []float32, bitDepth int) {
	for i, s := range samples {
		v := audio.FloatToSample(s)
		switch bitDepth {
		case 16:
			dst[i] = int(audio.SampleToInt16(v))
		case 32:
			dst[i] = int(v) << 8
		default:
			dst[i] = int(v)
		}
	}
}
