package placeholder_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/okian/mosaic/internal/adapters/placeholder"
	. "github.com/smartystreets/goconvey/convey"
)

func decode(t *testing.T, uri string) string {
	t.Helper()
	const prefix = "data:image/svg+xml;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("unexpected data URI prefix: %s", uri)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatalf("invalid base64 payload: %v", err)
	}
	return string(raw)
}

func TestPlaceholderGeneration(t *testing.T) {
	Convey("Given a provider with defaults", t, func() {
		p := placeholder.New()

		Convey("When generating a pending placeholder", func() {
			svg := decode(t, p.Pending(640, 360))

			Convey("Then it embeds the declared dimensions", func() {
				So(svg, ShouldContainSubstring, `width="640"`)
				So(svg, ShouldContainSubstring, `height="360"`)
				So(svg, ShouldNotContainSubstring, "path")
			})
		})

		Convey("When generating an error placeholder", func() {
			svg := decode(t, p.Error(640, 360))

			Convey("Then it carries the cross marker", func() {
				So(svg, ShouldContainSubstring, "path")
			})
		})

		Convey("When dimensions are missing", func() {
			svg := decode(t, p.Pending(0, -5))

			Convey("Then sane defaults substitute", func() {
				So(svg, ShouldContainSubstring, `width="300"`)
				So(svg, ShouldContainSubstring, `height="150"`)
			})
		})

		Convey("Then generation is deterministic", func() {
			So(p.Pending(10, 10), ShouldEqual, p.Pending(10, 10))
			So(p.Error(10, 10), ShouldNotEqual, p.Pending(10, 10))
		})
	})

	Convey("Given a provider with custom fills", t, func() {
		p := placeholder.New(
			placeholder.WithPendingFill("#ffffff"),
			placeholder.WithErrorFill("#000000"),
		)

		Convey("Then the fills appear in the output", func() {
			So(decode(t, p.Pending(8, 8)), ShouldContainSubstring, "#ffffff")
			So(decode(t, p.Error(8, 8)), ShouldContainSubstring, "#000000")
		})
	})
}
