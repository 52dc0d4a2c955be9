package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	service "github.com/okian/mosaic/internal/app"
	"github.com/okian/mosaic/internal/adapters/observe"
	"github.com/okian/mosaic/internal/domain/model"
	"github.com/okian/mosaic/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

// fakeFetcher serves sources from memory and fails the ones marked broken.
type fakeFetcher struct {
	mu     sync.Mutex
	broken map[string]bool
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{broken: make(map[string]bool), calls: make(map[string]int)}
}

func (f *fakeFetcher) setBroken(source string, broken bool) {
	f.mu.Lock()
	f.broken[source] = broken
	f.mu.Unlock()
}

func (f *fakeFetcher) Fetch(_ context.Context, source string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[source]++
	if f.broken[source] {
		return 0, errors.New("fetch failed")
	}
	return 1024, nil
}

// fakeViewport feeds scripted sightings.
type fakeViewport struct {
	ch chan observe.Sighting
}

func newFakeViewport() *fakeViewport {
	return &fakeViewport{ch: make(chan observe.Sighting, 16)}
}

func (v *fakeViewport) Sightings() <-chan observe.Sighting { return v.ch }
func (v *fakeViewport) Close() error                       { close(v.ch); return nil }

func (v *fakeViewport) see(id string) {
	v.ch <- observe.Sighting{ID: id, Ratio: 0.5}
}

// fakeConnection reports a settable raw tier.
type fakeConnection struct {
	mu    sync.Mutex
	tier  string
	pulse chan struct{}
}

func newFakeConnection(tier string) *fakeConnection {
	return &fakeConnection{tier: tier, pulse: make(chan struct{}, 4)}
}

func (c *fakeConnection) RawTier() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tier
}

func (c *fakeConnection) Changes() <-chan struct{} { return c.pulse }

// captureSink records every source pushed to the rendered element.
type captureSink struct {
	mu      sync.Mutex
	applied []string
}

func (s *captureSink) Apply(source string) {
	s.mu.Lock()
	s.applied = append(s.applied, source)
	s.mu.Unlock()
}

func (s *captureSink) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.applied) == 0 {
		return ""
	}
	return s.applied[len(s.applied)-1]
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func startEngine(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	base := []service.Option{
		service.WithBackoffBase(time.Millisecond),
		service.WithInterBatchDelay(time.Millisecond),
	}
	svc := service.New(append(base, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func loadedState(svc *service.Service, id string, want model.State) func() bool {
	return func() bool {
		rec, err := svc.Resource(context.Background(), id)
		return err == nil && rec.State == want
	}
}

func TestEngineLifecycle(t *testing.T) {
	Convey("Given a running engine with a scripted viewport", t, func() {
		ctx := context.Background()
		fetcher := newFakeFetcher()
		viewport := newFakeViewport()
		svc := startEngine(t,
			service.WithFetcher(fetcher),
			service.WithVisibilitySource(viewport),
		)

		Convey("When a normal resource is registered and then sighted", func() {
			var gotLoaded sync.Once
			loadedCh := make(chan model.LoadResult, 1)
			_, err := svc.Subscribe(model.TopicResourceLoaded, func(_ context.Context, payload any) {
				if res, ok := payload.(model.LoadResult); ok {
					gotLoaded.Do(func() { loadedCh <- res })
				}
			})
			So(err, ShouldBeNil)

			sink := &captureSink{}
			id, err := svc.Register(ctx, model.Resource{
				OriginalSource: "https://cdn.example.com/photo.avif",
				Tier:           model.TierNormal,
				Width:          640,
				Height:         480,
			}, sink)
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)

			Convey("Then a pending placeholder shows before the sighting", func() {
				So(sink.last(), ShouldStartWith, "data:image/svg+xml;base64,")

				rec, err := svc.Resource(ctx, id)
				So(err, ShouldBeNil)
				So(rec.State, ShouldEqual, model.StatePending)

				Convey("And the sighting drives it to loaded", func() {
					viewport.see(id)

					So(eventually(loadedState(svc, id, model.StateLoaded)), ShouldBeTrue)

					rec, err := svc.Resource(ctx, id)
					So(err, ShouldBeNil)
					So(rec.AppliedSource, ShouldEqual, "https://cdn.example.com/photo.avif")
					So(sink.last(), ShouldEqual, "https://cdn.example.com/photo.avif")

					select {
					case res := <-loadedCh:
						So(res.ID, ShouldEqual, id)
					case <-time.After(2 * time.Second):
						t.Fatal("no resourceLoaded event")
					}
				})
			})
		})

		Convey("When a critical resource is registered", func() {
			sink := &captureSink{}
			id, err := svc.Register(ctx, model.Resource{
				OriginalSource: "https://cdn.example.com/hero.avif",
				Tier:           model.TierCritical,
			}, sink)
			So(err, ShouldBeNil)

			Convey("Then it loads without any sighting", func() {
				So(eventually(loadedState(svc, id, model.StateLoaded)), ShouldBeTrue)
				So(sink.last(), ShouldEqual, "https://cdn.example.com/hero.avif")
			})
		})
	})
}

func TestEngineFailureAndReload(t *testing.T) {
	Convey("Given a running engine and a broken source", t, func() {
		ctx := context.Background()
		fetcher := newFakeFetcher()
		viewport := newFakeViewport()
		svc := startEngine(t,
			service.WithFetcher(fetcher),
			service.WithVisibilitySource(viewport),
			service.WithMaxRetries(1),
		)

		source := "https://cdn.example.com/broken.avif"
		fetcher.setBroken(source, true)

		sink := &captureSink{}
		id, err := svc.Register(ctx, model.Resource{
			OriginalSource: source,
			Tier:           model.TierHigh,
			Width:          320,
			Height:         240,
		}, sink)
		So(err, ShouldBeNil)

		Convey("When the sighting triggers a load that exhausts retries", func() {
			viewport.see(id)
			So(eventually(loadedState(svc, id, model.StateErrored)), ShouldBeTrue)

			rec, err := svc.Resource(ctx, id)
			So(err, ShouldBeNil)
			So(rec.RetryCount, ShouldEqual, 1)
			So(strings.HasPrefix(rec.AppliedSource, "data:image/svg+xml;base64,"), ShouldBeTrue)

			Convey("Then ForceReload re-arms it and a fixed source loads", func() {
				fetcher.setBroken(source, false)
				So(svc.ForceReload(ctx, id), ShouldBeNil)

				rec, err := svc.Resource(ctx, id)
				So(err, ShouldBeNil)
				So(rec.State, ShouldEqual, model.StatePending)
				So(rec.RetryCount, ShouldEqual, 0)

				viewport.see(id)
				So(eventually(loadedState(svc, id, model.StateLoaded)), ShouldBeTrue)
				So(sink.last(), ShouldEqual, source)
			})
		})
	})
}

func TestEngineFallbackSource(t *testing.T) {
	Convey("Given a resource with a fallback source", t, func() {
		ctx := context.Background()
		fetcher := newFakeFetcher()
		svc := startEngine(t,
			service.WithFetcher(fetcher),
			service.WithMaxRetries(0),
		)

		source := "https://cdn.example.com/fancy.avif"
		fetcher.setBroken(source, true)

		sink := &captureSink{}
		id, err := svc.Register(ctx, model.Resource{
			OriginalSource: source,
			FallbackSource: "https://cdn.example.com/fancy.jpg",
			Tier:           model.TierNormal,
		}, sink)
		So(err, ShouldBeNil)

		Convey("When the fetch fails terminally", func() {
			Convey("Then the fallback is applied instead of a placeholder", func() {
				So(eventually(loadedState(svc, id, model.StateErrored)), ShouldBeTrue)
				So(sink.last(), ShouldEqual, "https://cdn.example.com/fancy.jpg")
			})
		})
	})
}

func TestEnginePauseResume(t *testing.T) {
	Convey("Given a paused engine", t, func() {
		ctx := context.Background()
		fetcher := newFakeFetcher()
		viewport := newFakeViewport()
		svc := startEngine(t,
			service.WithFetcher(fetcher),
			service.WithVisibilitySource(viewport),
		)
		svc.Pause(ctx)

		id, err := svc.Register(ctx, model.Resource{
			OriginalSource: "https://cdn.example.com/later.avif",
			Tier:           model.TierNormal,
		}, nil)
		So(err, ShouldBeNil)

		Convey("When a sighting arrives while paused", func() {
			viewport.see(id)

			Convey("Then the resource waits in the queue", func() {
				So(eventually(loadedState(svc, id, model.StateQueued)), ShouldBeTrue)
				time.Sleep(30 * time.Millisecond)
				rec, err := svc.Resource(ctx, id)
				So(err, ShouldBeNil)
				So(rec.State, ShouldEqual, model.StateQueued)

				Convey("And resume drains it", func() {
					svc.Resume(ctx)
					So(eventually(loadedState(svc, id, model.StateLoaded)), ShouldBeTrue)
				})
			})
		})
	})
}

func TestEngineUnwatchReleasesQueued(t *testing.T) {
	Convey("Given a paused engine with a sighted resource", t, func() {
		ctx := context.Background()
		fetcher := newFakeFetcher()
		viewport := newFakeViewport()
		svc := startEngine(t,
			service.WithFetcher(fetcher),
			service.WithVisibilitySource(viewport),
		)
		svc.Pause(ctx)

		id, err := svc.Register(ctx, model.Resource{
			OriginalSource: "https://cdn.example.com/dropped.avif",
			Tier:           model.TierNormal,
		}, nil)
		So(err, ShouldBeNil)
		viewport.see(id)
		So(eventually(loadedState(svc, id, model.StateQueued)), ShouldBeTrue)

		Convey("When the resource is unwatched", func() {
			svc.Unwatch(ctx, id)

			Convey("Then it returns to pending instead of sticking in queued", func() {
				So(eventually(loadedState(svc, id, model.StatePending)), ShouldBeTrue)

				Convey("And a re-watch brings it back through the pipeline", func() {
					So(svc.Watch(ctx, id), ShouldBeNil)
					viewport.see(id)
					svc.Resume(ctx)
					So(eventually(loadedState(svc, id, model.StateLoaded)), ShouldBeTrue)
				})
			})
		})

		Convey("When re-watching a resource that is not pending", func() {
			svc.Resume(ctx)
			So(eventually(loadedState(svc, id, model.StateLoaded)), ShouldBeTrue)
			err := svc.Watch(ctx, id)
			So(errors.Is(err, service.ErrNotPending), ShouldBeTrue)
		})
	})
}

func TestEngineEagerVisibilityFallback(t *testing.T) {
	Convey("Given an engine with no visibility source", t, func() {
		ctx := context.Background()
		fetcher := newFakeFetcher()
		svc := startEngine(t, service.WithFetcher(fetcher))

		Convey("When a normal resource is registered", func() {
			id, err := svc.Register(ctx, model.Resource{
				OriginalSource: "https://cdn.example.com/eager.avif",
				Tier:           model.TierNormal,
			}, nil)
			So(err, ShouldBeNil)

			Convey("Then it loads without any sighting", func() {
				So(eventually(loadedState(svc, id, model.StateLoaded)), ShouldBeTrue)
			})
		})
	})
}

func TestEngineNetworkSignal(t *testing.T) {
	Convey("Given an engine with a slow connection signal", t, func() {
		fetcher := newFakeFetcher()
		conn := newFakeConnection("2g")
		svc := startEngine(t,
			service.WithFetcher(fetcher),
			service.WithNetworkSignal(conn),
		)

		Convey("Then the profiler reports the slow class", func() {
			So(eventually(func() bool {
				return svc.NetworkClass() == model.ClassSlow
			}), ShouldBeTrue)
		})
	})
}

func TestEngineNotStarted(t *testing.T) {
	Convey("Given an engine that was never started", t, func() {
		svc := service.New()

		Convey("When operations are attempted", func() {
			_, err := svc.Register(context.Background(), model.Resource{
				OriginalSource: "https://cdn.example.com/x.avif",
			}, nil)

			Convey("Then they fail with a sentinel", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.ForceReload(context.Background(), "x"), ShouldEqual, service.ErrNotStarted)
				So(func() { svc.Stop() }, ShouldNotPanic)
			})
		})
	})
}

func TestEngineStats(t *testing.T) {
	Convey("Given a running engine", t, func() {
		ctx := context.Background()
		fetcher := newFakeFetcher()
		svc := startEngine(t, service.WithFetcher(fetcher))

		id, err := svc.Register(ctx, model.Resource{
			OriginalSource: "https://cdn.example.com/stats.avif",
			Tier:           model.TierNormal,
		}, nil)
		So(err, ShouldBeNil)
		So(eventually(loadedState(svc, id, model.StateLoaded)), ShouldBeTrue)

		Convey("When stats are read", func() {
			stats := svc.GetStats()

			Convey("Then they reflect the engine state", func() {
				So(stats["started"], ShouldBeTrue)
				So(stats["resources"], ShouldEqual, 1)
				So(stats["networkClass"], ShouldEqual, "normal")

				snap := svc.Snapshot(ctx)
				So(len(snap), ShouldEqual, 1)
				So(snap[0].ID, ShouldEqual, id)
			})
		})
	})
}
