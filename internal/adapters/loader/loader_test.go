package loader_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/okian/mosaic/internal/adapters/bus"
	"github.com/okian/mosaic/internal/adapters/loader"
	"github.com/okian/mosaic/internal/adapters/placeholder"
	"github.com/okian/mosaic/internal/adapters/registry"
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

// scriptedFetcher fails a fixed number of times before succeeding.
type scriptedFetcher struct {
	mu       sync.Mutex
	failures int
	calls    int
	block    chan struct{} // when set, Fetch waits on it
}

func (f *scriptedFetcher) Fetch(ctx context.Context, source string) (int64, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	if n <= f.failures {
		return 0, errors.New("synthetic fetch failure")
	}
	return 64, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// intoLoading registers a resource and walks it to the loading state.
func intoLoading(t *testing.T, reg *registry.InMemoryRegistry, res model.Resource) string {
	t.Helper()
	ctx := context.Background()
	id, err := reg.Register(ctx, res, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.MarkQueued(ctx, id); err != nil {
		t.Fatalf("mark queued: %v", err)
	}
	if err := reg.MarkLoading(ctx, id); err != nil {
		t.Fatalf("mark loading: %v", err)
	}
	return id
}

func TestLoadSuccess(t *testing.T) {
	Convey("Given a loading resource and a healthy fetcher", t, func() {
		reg := registry.New()
		b := bus.New()
		f := &scriptedFetcher{}
		l := loader.New(reg, b, f, loader.WithBackoffBase(time.Millisecond))
		ctx := context.Background()

		var results []model.LoadResult
		_, _ = b.Subscribe(model.TopicResourceLoaded, func(ctx context.Context, payload any) {
			if r, ok := payload.(model.LoadResult); ok {
				results = append(results, r)
			}
		})

		id := intoLoading(t, reg, model.Resource{OriginalSource: "https://cdn.example.com/a.webp"})

		Convey("When loading", func() {
			So(l.Load(ctx, id), ShouldBeNil)

			Convey("Then the record is loaded with the original source applied", func() {
				rec, _ := reg.Get(ctx, id)
				So(rec.State, ShouldEqual, model.StateLoaded)
				So(rec.RetryCount, ShouldEqual, 0)
				So(rec.AppliedSource, ShouldEqual, "https://cdn.example.com/a.webp")
			})

			Convey("And a resourceLoaded event is published", func() {
				So(len(results), ShouldEqual, 1)
				So(results[0].ID, ShouldEqual, id)
			})
		})
	})
}

func TestLoadRetryBound(t *testing.T) {
	Convey("Given a fetcher that always fails and maxRetries 2", t, func() {
		reg := registry.New(registry.WithMaxRetries(2))
		b := bus.New()
		f := &scriptedFetcher{failures: 1 << 30}
		l := loader.New(reg, b, f,
			loader.WithMaxRetries(2),
			loader.WithBackoffBase(time.Millisecond),
			loader.WithPlaceholders(placeholder.New()),
		)
		ctx := context.Background()

		var failures []model.LoadFailure
		_, _ = b.Subscribe(model.TopicResourceError, func(ctx context.Context, payload any) {
			if e, ok := payload.(model.LoadFailure); ok {
				failures = append(failures, e)
			}
		})

		id := intoLoading(t, reg, model.Resource{
			OriginalSource: "https://cdn.example.com/broken.webp",
			Width:          100,
			Height:         80,
		})

		Convey("When loading", func() {
			So(l.Load(ctx, id), ShouldBeNil)

			Convey("Then the chain runs exactly maxRetries+1 attempts", func() {
				So(f.callCount(), ShouldEqual, 3)
			})

			Convey("And the record ends errored at the retry bound", func() {
				rec, _ := reg.Get(ctx, id)
				So(rec.State, ShouldEqual, model.StateErrored)
				So(rec.RetryCount, ShouldEqual, 2)
			})

			Convey("And a placeholder substitutes for the missing fallback", func() {
				rec, _ := reg.Get(ctx, id)
				So(rec.AppliedSource, ShouldStartWith, "data:image/svg+xml")
			})

			Convey("And a resourceError event carries the retry count", func() {
				So(len(failures), ShouldEqual, 1)
				So(failures[0].ID, ShouldEqual, id)
				So(failures[0].RetryCount, ShouldEqual, 2)
			})
		})
	})
}

func TestLoadFallbackSource(t *testing.T) {
	Convey("Given an exhausted resource with a fallback source", t, func() {
		reg := registry.New(registry.WithMaxRetries(1))
		b := bus.New()
		f := &scriptedFetcher{failures: 1 << 30}
		l := loader.New(reg, b, f,
			loader.WithMaxRetries(1),
			loader.WithBackoffBase(time.Millisecond),
			loader.WithPlaceholders(placeholder.New()),
		)
		ctx := context.Background()

		id := intoLoading(t, reg, model.Resource{
			OriginalSource: "https://cdn.example.com/broken.webp",
			FallbackSource: "https://cdn.example.com/fallback.webp",
		})

		Convey("When loading", func() {
			So(l.Load(ctx, id), ShouldBeNil)

			Convey("Then the fallback wins over the placeholder", func() {
				rec, _ := reg.Get(ctx, id)
				So(rec.AppliedSource, ShouldEqual, "https://cdn.example.com/fallback.webp")
			})
		})
	})
}

func TestLoadRetryThenSucceed(t *testing.T) {
	Convey("Given a fetcher that fails twice and maxRetries 3", t, func() {
		reg := registry.New(registry.WithMaxRetries(3))
		b := bus.New()
		f := &scriptedFetcher{failures: 2}
		l := loader.New(reg, b, f,
			loader.WithMaxRetries(3),
			loader.WithBackoffBase(time.Millisecond),
		)
		ctx := context.Background()

		var results []model.LoadResult
		_, _ = b.Subscribe(model.TopicResourceLoaded, func(ctx context.Context, payload any) {
			if r, ok := payload.(model.LoadResult); ok {
				results = append(results, r)
			}
		})

		id := intoLoading(t, reg, model.Resource{OriginalSource: "https://cdn.example.com/flaky.webp"})

		Convey("When loading", func() {
			So(l.Load(ctx, id), ShouldBeNil)

			Convey("Then the third attempt lands and history shows two retries", func() {
				So(f.callCount(), ShouldEqual, 3)
				rec, _ := reg.Get(ctx, id)
				So(rec.State, ShouldEqual, model.StateLoaded)
				So(rec.RetryCount, ShouldEqual, 2)
				So(len(results), ShouldEqual, 1)
			})
		})
	})
}

func TestLoadSingleFlight(t *testing.T) {
	Convey("Given a load blocked mid-fetch", t, func() {
		reg := registry.New()
		b := bus.New()
		block := make(chan struct{})
		f := &scriptedFetcher{block: block}
		l := loader.New(reg, b, f, loader.WithBackoffBase(time.Millisecond))
		ctx := context.Background()

		id := intoLoading(t, reg, model.Resource{OriginalSource: "https://cdn.example.com/slow.webp"})

		done := make(chan error, 1)
		go func() { done <- l.Load(ctx, id) }()

		// Wait until the first load holds the slot.
		deadline := time.Now().Add(2 * time.Second)
		for !l.InFlight(id) && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		So(l.InFlight(id), ShouldBeTrue)

		Convey("When a second load races in", func() {
			err := l.Load(ctx, id)

			Convey("Then it is rejected without touching the first", func() {
				So(errors.Is(err, loader.ErrAlreadyInFlight), ShouldBeTrue)

				close(block)
				So(<-done, ShouldBeNil)
				rec, _ := reg.Get(ctx, id)
				So(rec.State, ShouldEqual, model.StateLoaded)
			})
		})
	})
}

func TestLoadRequiresLoadingState(t *testing.T) {
	Convey("Given a resource still pending", t, func() {
		reg := registry.New()
		b := bus.New()
		l := loader.New(reg, b, &scriptedFetcher{})
		ctx := context.Background()

		id, _ := reg.Register(ctx, model.Resource{OriginalSource: "s"}, nil)

		Convey("When loading it directly", func() {
			err := l.Load(ctx, id)

			Convey("Then the loader refuses", func() {
				So(errors.Is(err, loader.ErrNotLoading), ShouldBeTrue)
			})
		})
	})
}

func TestHTTPFetcher(t *testing.T) {
	Convey("Given an HTTP server", t, func() {
		body := []byte("0123456789abcdef")
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/missing" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(body)
		}))
		defer srv.Close()

		f := loader.NewHTTPFetcher(srv.Client())
		ctx := context.Background()

		Convey("When fetching an existing resource", func() {
			n, err := f.Fetch(ctx, srv.URL+"/img.webp")

			Convey("Then the byte count comes back", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, int64(len(body)))
			})
		})

		Convey("When the server answers 404", func() {
			_, err := f.Fetch(ctx, srv.URL+"/missing")

			Convey("Then the attempt fails with a status error", func() {
				So(errors.Is(err, loader.ErrBadStatus), ShouldBeTrue)
			})
		})
	})
}
