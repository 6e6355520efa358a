// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats, sample conversions and gain helpers
package audio

import (
	"math"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes a PCM stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// Valid reports whether the format can be rendered
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// SameLayout reports whether two formats can share one device stream
func (f Format) SameLayout(o Format) bool {
	return f.SampleRate == o.SampleRate && f.Channels == o.Channels
}

// FramesFor converts a duration to a frame count at this sample rate
func (f Format) FramesFor(d time.Duration) int64 {
	if f.SampleRate <= 0 || d <= 0 {
		return 0
	}
	return int64(d) * int64(f.SampleRate) / int64(time.Second)
}

// DurationOf converts a frame count to a duration at this sample rate
func (f Format) DurationOf(frames int64) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames * int64(time.Second) / int64(f.SampleRate))
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// FloatToSample converts a float sample in [-1,1] to the 24-bit int32 range
func FloatToSample(f float32) int32 {
	v := int64(float64(Clamp(f)) * Max24Bit)
	if v > Max24Bit {
		v = Max24Bit
	} else if v < Min24Bit {
		v = Min24Bit
	}
	return int32(v)
}

// SampleToFloat converts a 24-bit range int32 sample to float in [-1,1]
func SampleToFloat(sample int32) float32 {
	return float32(float64(sample) / 8388608.0)
}

// IntToFloat normalises a signed integer sample of the given bit depth
func IntToFloat(v int, bitDepth int) float32 {
	switch bitDepth {
	case 8:
		return float32(v) / 128.0
	case 24:
		return float32(v) / 8388608.0
	case 32:
		return float32(float64(v) / 2147483648.0)
	default:
		return float32(v) / 32768.0
	}
}

// Clamp limits a float sample to [-1,1]
func Clamp(f float32) float32 {
	if f > 1 {
		return 1
	}
	if f < -1 {
		return -1
	}
	return f
}

// DBToLinear converts a gain in decibels to a linear multiplier
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts a linear multiplier to decibels
func LinearToDB(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}
