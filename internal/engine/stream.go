// ABOUTME: Decode-ahead stream for one playlist item
// ABOUTME: A goroutine decodes, converts and resamples into a ring the audio callback drains
package engine

import (
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/internal/playlist"
	"github.com/harperreed/wavedeck/internal/signal"
	"github.com/harperreed/wavedeck/pkg/audio"
	"github.com/harperreed/wavedeck/pkg/audio/decode"
	"github.com/harperreed/wavedeck/pkg/audio/resample"
)

const (
	defaultRingDuration = 2 * time.Second
	fillChunkFrames     = 2048
)

// trackStream owns a decoder while its fill goroutine runs. The audio
// callback only touches the ring, the atomics and the rt* fields.
type trackStream struct {
	item     playlist.Item
	seek     time.Duration
	duration time.Duration
	src      audio.Format
	dst      audio.Format
	logger   zerolog.Logger

	// requested is the seek as asked for; negative counts from the end
	requested time.Duration

	dec   decode.Decoder
	ring  *spscRing
	speed *atomic.Uint64 // engine pitch, float64 bits

	gain     atomic.Uint32 // linear, float32 bits
	gainDB   atomic.Uint64 // float64 bits, for reporting
	eof      atomic.Bool   // fill goroutine wrote its last sample
	failed   atomic.Bool   // decoding stopped on an error
	ended    atomic.Bool   // drained with nothing queued after it
	pos      atomic.Int64  // track position in nanoseconds
	startOut atomic.Int64  // output frame where the stream became audible

	// owned by the audio callback
	rtPos    float64 // seconds since seek
	rtLeadIn int64
	rtFade   int64 // frames into the fade out

	space *signal.Wake
	stop  *signal.Flag
	ready chan struct{}
	done  chan struct{}

	closeOnce sync.Once
	detached  bool
}

func newTrackStream(item playlist.Item, dec decode.Decoder, seek time.Duration, dst audio.Format, speed *atomic.Uint64, ringDur time.Duration, logger zerolog.Logger) *trackStream {
	if ringDur <= 0 {
		ringDur = defaultRingDuration
	}
	s := &trackStream{
		item:     item,
		seek:     seek,
		duration: dec.Duration(),
		src:      dec.Format(),
		dst:      dst,
		logger:   logger,
		dec:      dec,
		ring:     newSPSCRing(int(dst.FramesFor(ringDur)) * dst.Channels),
		speed:    speed,
		space:    signal.NewWake(),
		stop:     signal.NewFlag(),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.setGain(0)
	s.pos.Store(int64(seek))
	s.startOut.Store(-1)
	return s
}

func (s *trackStream) start() {
	go s.fill()
}

// fill decodes until the ring is full, then waits for the reader
func (s *trackStream) fill() {
	defer close(s.done)
	readyOnce := sync.OnceFunc(func() { close(s.ready) })
	defer readyOnce()

	srcCh, dstCh := s.src.Channels, s.dst.Channels
	rs := resample.New(s.src.SampleRate, s.dst.SampleRate, dstCh)
	in := make([]float32, fillChunkFrames*srcCh)
	var conv, out, pending []float32
	finished := false

	for {
		if s.stop.IsSet() {
			return
		}
		if len(pending) > 0 {
			n := s.ring.Write(pending, dstCh)
			pending = pending[n:]
			if n > 0 {
				readyOnce()
			}
			if len(pending) > 0 {
				select {
				case <-s.space.C():
				case <-s.stop.Done():
					return
				}
				continue
			}
		}
		if finished {
			s.eof.Store(true)
			readyOnce()
			return
		}

		frames, err := s.dec.Read(in)
		if err != nil {
			finished = true
			if !errors.Is(err, io.EOF) {
				s.failed.Store(true)
				s.logger.Warn().Err(err).Str("file", s.item.Filename).Msg("Decode failed, ending item")
			}
		}
		if frames == 0 {
			continue
		}

		conv = remix(in[:frames*srcCh], srcCh, dstCh, conv[:0])
		if speed := math.Float64frombits(s.speed.Load()); speed != rs.Speed() {
			rs.SetSpeed(speed)
		}
		out = rs.Process(conv, out[:0])
		pending = out
	}
}

// remix converts interleaved frames between channel counts
func remix(in []float32, srcCh, dstCh int, out []float32) []float32 {
	if srcCh == dstCh {
		return append(out, in...)
	}
	frames := len(in) / srcCh
	for f := 0; f < frames; f++ {
		frame := in[f*srcCh : (f+1)*srcCh]
		switch {
		case srcCh == 1:
			for c := 0; c < dstCh; c++ {
				out = append(out, frame[0])
			}
		case dstCh == 1:
			var sum float32
			for _, v := range frame {
				sum += v
			}
			out = append(out, sum/float32(srcCh))
		default:
			for c := 0; c < dstCh; c++ {
				if c < srcCh {
					out = append(out, frame[c])
				} else {
					out = append(out, 0)
				}
			}
		}
	}
	return out
}

// waitReady blocks until the first samples are buffered or decoding ended
func (s *trackStream) waitReady(timeout time.Duration) bool {
	select {
	case <-s.ready:
		return true
	case <-time.After(timeout):
		return false
	}
}

// drained reports that every decoded sample has been read
func (s *trackStream) drained() bool {
	return s.eof.Load() && s.ring.Len() == 0
}

func (s *trackStream) setGain(db float64) {
	s.gainDB.Store(math.Float64bits(db))
	s.gain.Store(math.Float32bits(float32(audio.DBToLinear(db))))
}

// boosts reports a gain above unity
func (s *trackStream) boosts() bool {
	return math.Float32frombits(s.gain.Load()) > 1
}

func (s *trackStream) gainValue() float64 {
	return math.Float64frombits(s.gainDB.Load())
}

// Position returns the playback position within the track
func (s *trackStream) Position() time.Duration {
	return time.Duration(s.pos.Load())
}

// read pulls up to len(dst)/channels frames with gain applied. Called from
// the audio callback only.
func (s *trackStream) read(dst []float32) int {
	ch := s.dst.Channels
	n := s.ring.Read(dst, ch)
	if n > 0 {
		s.space.Notify()
		g := math.Float32frombits(s.gain.Load())
		if g != 1 {
			for i := range dst[:n] {
				dst[i] *= g
			}
		}
	}
	frames := n / ch
	speed := math.Float64frombits(s.speed.Load())
	s.rtPos += float64(frames) * speed / float64(s.dst.SampleRate)
	s.pos.Store(int64(s.seek) + int64(s.rtPos*float64(time.Second)))
	return frames
}

// framesUntil returns output frames left before the track reaches at
func (s *trackStream) framesUntil(at time.Duration) int64 {
	left := (at - s.seek).Seconds() - s.rtPos
	if left <= 0 {
		return 0
	}
	speed := math.Float64frombits(s.speed.Load())
	return int64(math.Ceil(left*float64(s.dst.SampleRate)/speed - 1e-6))
}

// detach stops the fill goroutine and hands the decoder back to the caller
func (s *trackStream) detach() decode.Decoder {
	s.stop.Set()
	<-s.done
	s.detached = true
	return s.dec
}

// close stops decoding and releases the decoder
func (s *trackStream) close() {
	s.closeOnce.Do(func() {
		s.stop.Set()
		<-s.done
		if !s.detached {
			s.dec.Close()
		}
	})
}
