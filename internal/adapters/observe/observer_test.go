package observe_test

import (
	"testing"
	"time"

	"github.com/okian/mosaic/internal/adapters/observe"
	"github.com/okian/mosaic/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

type fakeSource struct {
	ch chan observe.Sighting
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan observe.Sighting, 16)}
}

func (s *fakeSource) Sightings() <-chan observe.Sighting { return s.ch }

func (s *fakeSource) Close() error {
	close(s.ch)
	return nil
}

func (s *fakeSource) see(id string, ratio float64) {
	s.ch <- observe.Sighting{ID: id, Ratio: ratio}
}

func waitFor(ch <-chan string) (string, bool) {
	select {
	case id := <-ch:
		return id, true
	case <-time.After(2 * time.Second):
		return "", false
	}
}

func expectQuiet(ch <-chan string) bool {
	select {
	case <-ch:
		return false
	case <-time.After(50 * time.Millisecond):
		return true
	}
}

func TestSourceObserverOneShot(t *testing.T) {
	Convey("Given an observer over a real source", t, func() {
		src := newFakeSource()
		obs := observe.New(src, observe.WithThreshold(0.5))
		defer func() { _ = obs.Close() }()

		fired := make(chan string, 4)
		So(obs.Watch("hero", func(id string) { fired <- id }), ShouldBeNil)

		Convey("When a sighting below the threshold arrives", func() {
			src.see("hero", 0.2)

			Convey("Then the watch does not fire", func() {
				So(expectQuiet(fired), ShouldBeTrue)
				So(obs.Watching("hero"), ShouldBeTrue)
			})
		})

		Convey("When a sighting at the threshold arrives", func() {
			src.see("hero", 0.5)

			Convey("Then the watch fires exactly once and retires", func() {
				id, ok := waitFor(fired)
				So(ok, ShouldBeTrue)
				So(id, ShouldEqual, "hero")

				src.see("hero", 0.9)
				So(expectQuiet(fired), ShouldBeTrue)
				So(obs.Watching("hero"), ShouldBeFalse)
			})
		})

		Convey("When watching again after the watch fired", func() {
			src.see("hero", 0.8)
			_, ok := waitFor(fired)
			So(ok, ShouldBeTrue)

			So(obs.Watch("hero", func(id string) { fired <- id }), ShouldBeNil)
			src.see("hero", 0.8)

			Convey("Then the re-armed watch fires again", func() {
				id, ok := waitFor(fired)
				So(ok, ShouldBeTrue)
				So(id, ShouldEqual, "hero")
			})
		})
	})
}

func TestSourceObserverUnwatch(t *testing.T) {
	Convey("Given an armed watch", t, func() {
		src := newFakeSource()
		obs := observe.New(src)
		defer func() { _ = obs.Close() }()

		fired := make(chan string, 1)
		So(obs.Watch("aside", func(id string) { fired <- id }), ShouldBeNil)

		Convey("When the watch is dropped before any sighting", func() {
			obs.Unwatch("aside")
			src.see("aside", 1.0)

			Convey("Then nothing fires", func() {
				So(expectQuiet(fired), ShouldBeTrue)
			})
		})

		Convey("When dropping an unknown id", func() {
			So(func() { obs.Unwatch("nobody") }, ShouldNotPanic)
		})
	})
}

func TestEagerFallback(t *testing.T) {
	Convey("Given no visibility source on the host", t, func() {
		obs := observe.New(nil)
		defer func() { _ = obs.Close() }()

		Convey("When watching a resource", func() {
			var got string
			err := obs.Watch("any", func(id string) { got = id })

			Convey("Then the callback fires immediately", func() {
				So(err, ShouldBeNil)
				So(got, ShouldEqual, "any")
			})
		})

		Convey("When watching with a nil callback", func() {
			So(obs.Watch("any", nil), ShouldEqual, observe.ErrNilCallback)
		})

		Convey("When the observer is closed", func() {
			So(obs.Close(), ShouldBeNil)
			err := obs.Watch("late", func(string) {})

			Convey("Then watches are rejected", func() {
				So(err, ShouldEqual, observe.ErrObserverClosed)
			})
		})
	})
}
