package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/heatscore/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.ScoringRule, convey.ShouldEqual, config.RuleMean)
				convey.So(cfg.DBMaxOpenConns, convey.ShouldEqual, 1) // sqlite has a single writer
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("HEATSCORE_ADDR", ":8080")
			_ = os.Setenv("HEATSCORE_DB_DRIVER", "postgres")
			_ = os.Setenv("HEATSCORE_DB_DSN", "postgres://judge@localhost/heatscore?sslmode=disable")
			_ = os.Setenv("HEATSCORE_DB_MAX_OPEN_CONNS", "25")
			_ = os.Setenv("HEATSCORE_SCORING_RULE", "trimmed_mean")
			_ = os.Setenv("HEATSCORE_REQUIRE_PANEL_SESSION", "true")
			_ = os.Setenv("HEATSCORE_SESSION_SECRET", "pow")
			_ = os.Setenv("HEATSCORE_SESSION_TTL", "30m")
			_ = os.Setenv("HEATSCORE_SCORE_MAX", "10")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DBDriver, convey.ShouldEqual, config.DriverPostgres)
				convey.So(cfg.DBMaxOpenConns, convey.ShouldEqual, 25)
				convey.So(cfg.ScoringRule, convey.ShouldEqual, config.RuleTrimmedMean)
				convey.So(cfg.RequirePanelSession, convey.ShouldBeTrue)
				convey.So(cfg.SessionTTL, convey.ShouldEqual, 30*time.Minute)
				convey.So(cfg.ScoreMax, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
# venue overrides
addr: ":9090"
scoring_rule: median
score_precision: 1
dedupe_size: 5000
`
			tmpFile := createTempFile("heatscore-config-*.yaml", yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("HEATSCORE_CONFIG", tmpFile)
			_ = os.Setenv("HEATSCORE_ADDR", ":8080") // overrides the file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ScoringRule, convey.ShouldEqual, config.RuleMedian)
				convey.So(cfg.ScorePrecision, convey.ShouldEqual, 1)
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 5000)
				convey.So(cfg.TrimMinJudges, convey.ShouldEqual, 5) // from defaults
			})
		})

		convey.Convey("When a .env file is present", func() {
			envFile := createTempFile("heatscore-*.env", "HEATSCORE_SCORING_RULE=median\nHEATSCORE_ADDR=:7070\n")
			defer func() { _ = os.Remove(envFile) }()

			_ = os.Setenv("HEATSCORE_ENV_FILE", envFile)
			_ = os.Setenv("HEATSCORE_ADDR", ":6060") // real env wins over .env
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it fills the environment without overriding it", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.ScoringRule, convey.ShouldEqual, config.RuleMedian)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempFile("heatscore-config-*.yaml", `invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("HEATSCORE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("HEATSCORE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("HEATSCORE_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("HEATSCORE_SCORE_PRECISION", "two")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an unknown scoring rule", func() {
			_ = os.Setenv("HEATSCORE_SCORING_RULE", "olympic")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should reject it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"HEATSCORE_CONFIG",
		"HEATSCORE_ENV_FILE",
		"HEATSCORE_ADDR",
		"HEATSCORE_DB_DRIVER",
		"HEATSCORE_DB_DSN",
		"HEATSCORE_DB_MAX_OPEN_CONNS",
		"HEATSCORE_SCORING_RULE",
		"HEATSCORE_SCORE_PRECISION",
		"HEATSCORE_SCORE_MAX",
		"HEATSCORE_REQUIRE_PANEL_SESSION",
		"HEATSCORE_SESSION_SECRET",
		"HEATSCORE_SESSION_TTL",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempFile(pattern, content string) string {
	tmpFile, err := os.CreateTemp("", pattern)
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
