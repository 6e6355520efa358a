// ABOUTME: Tests for the crossfade calculator
// ABOUTME: Covers caching, superseded targets and cancellation
package crossfade

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/internal/playlist"
	"github.com/harperreed/wavedeck/pkg/audio/decode"
)

func newTestCalculator(fx *decode.Fixtures) *Calculator {
	p := DefaultParams()
	p.ChunkFrames = 1024
	return New(Options{
		Registry: fx.Registry(".gen"),
		Params:   p,
		Logger:   zerolog.Nop(),
	})
}

func item(name string) playlist.Item {
	return playlist.Item{ID: uuid.New(), Filename: name}
}

func slowTrack() decode.Decoder {
	return decode.NewScripted(testFormat, []decode.Segment{
		{Duration: 30 * time.Second, Amplitude: 0.5, Frequency: 440},
	}, decode.GeneratorOptions{ReadDelay: 20 * time.Millisecond})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCalculatorResult(t *testing.T) {
	fx := decode.NewFixtures()
	fx.Add("a.gen", func() decode.Decoder { return loudThenQuiet(20*time.Second, 5*time.Second) })
	c := newTestCalculator(fx)
	defer c.Close()

	var got []Result
	done := make(chan struct{})
	c.OnResult(func(r Result) {
		got = append(got, r)
		close(done)
	})

	a := item("a.gen")
	if c.SetTarget(a, 0) {
		t.Fatal("nothing should be cached yet")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}
	c.Wait()

	res, ok := c.Result(a.ID)
	if !ok {
		t.Fatal("result not cached")
	}
	if !res.Enabled || res.Position != 20*time.Second {
		t.Errorf("result = %+v, want fade at 20s", res)
	}
	if len(got) != 1 || got[0] != res {
		t.Errorf("listener got %+v", got)
	}

	if !c.SetTarget(a, 0) {
		t.Error("same target and seek should hit the cache")
	}
	c.Wait()
	if n := fx.Opened("a.gen"); n != 1 {
		t.Errorf("opened %d times, want 1", n)
	}
}

func TestCalculatorStopDuringAnalysis(t *testing.T) {
	fx := decode.NewFixtures()
	fx.Add("slow.gen", slowTrack)
	c := newTestCalculator(fx)
	defer c.Close()

	called := false
	c.OnResult(func(Result) { called = true })

	s := item("slow.gen")
	c.SetTarget(s, 0)
	waitFor(t, func() bool { return fx.Opened("slow.gen") == 1 })

	c.Cancel()
	waited := make(chan struct{})
	go func() {
		c.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("analysis did not observe cancellation")
	}

	if _, ok := c.Result(s.ID); ok {
		t.Error("cancelled analysis must not write a result")
	}
	if called {
		t.Error("listener called for cancelled analysis")
	}
	if c.Busy() {
		t.Error("calculator still busy after cancel")
	}
}

func TestCalculatorSupersededTarget(t *testing.T) {
	fx := decode.NewFixtures()
	fx.Add("slow.gen", slowTrack)
	fx.Add("fast.gen", func() decode.Decoder { return loudThenQuiet(4*time.Second, 2*time.Second) })
	c := newTestCalculator(fx)
	defer c.Close()

	slow, fast := item("slow.gen"), item("fast.gen")
	c.SetTarget(slow, 0)
	waitFor(t, func() bool { return fx.Opened("slow.gen") == 1 })
	c.SetTarget(fast, 0)

	waitFor(t, func() bool {
		_, ok := c.Result(fast.ID)
		return ok
	})
	c.Wait()

	if _, ok := c.Result(slow.ID); ok {
		t.Error("superseded target must not write a result")
	}
	res, _ := c.Result(fast.ID)
	if !res.Enabled || res.Position != 4*time.Second {
		t.Errorf("fast result = %+v", res)
	}
}

func TestCalculatorMissingFile(t *testing.T) {
	c := newTestCalculator(decode.NewFixtures())
	defer c.Close()

	m := item("missing.gen")
	c.SetTarget(m, 0)
	c.Wait()
	if _, ok := c.Result(m.ID); ok {
		t.Error("failed analysis must not be cached")
	}
	if c.Busy() {
		t.Error("calculator still busy after failure")
	}
}
