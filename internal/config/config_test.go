package config_test

import (
	"testing"

	"github.com/okian/mosaic/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.MaxRetries, convey.ShouldEqual, 2)
			convey.So(cfg.BackoffBaseMS, convey.ShouldEqual, 1000)
			convey.So(cfg.AttemptTimeoutMS, convey.ShouldEqual, 30_000)
			convey.So(cfg.InterBatchDelayMS, convey.ShouldEqual, 150)
			convey.So(cfg.DeviceClass, convey.ShouldEqual, "standard")
			convey.So(cfg.VisibilityThreshold, convey.ShouldEqual, 0.1)
			convey.So(cfg.ViewportMarginPX, convey.ShouldEqual, 200)
			convey.So(cfg.BatchFast, convey.ShouldEqual, 4)
			convey.So(cfg.BatchNormal, convey.ShouldEqual, 2)
			convey.So(cfg.BatchSlow, convey.ShouldEqual, 1)
		})
	})
}
