package cmd

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"log"
	"testing"
	"time"
)

type testConfig struct {
	GamesDir string `env:"CMD_TEST_GAMES_DIR" envDefault:"games"`
	Frames   int    `env:"CMD_TEST_FRAMES" envDefault:"60"`
}

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("GAEM_CMD_TEST_GAMES_DIR", "/srv/games")
	t.Setenv("GAEM_CMD_TEST_FRAMES", "10")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := testConfig{}
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("load config defaults: %v", err)
	}
	fs.StringVar(&cfg.GamesDir, "games-dir", cfg.GamesDir, "games dir")
	fs.IntVar(&cfg.Frames, "frames", cfg.Frames, "frames")

	if err := ParseArgs(fs, []string{"-games-dir", "/tmp/games"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.GamesDir != "/tmp/games" {
		t.Fatalf("expected flag value for games dir, got %q", cfg.GamesDir)
	}
	if cfg.Frames != 10 {
		t.Fatalf("expected env frames, got %d", cfg.Frames)
	}
}

func TestParseConfigFromArgsReadsEnvAndFlags(t *testing.T) {
	t.Setenv("GAEM_CMD_TEST_FRAMES", "3")

	cfg := testConfig{}
	fs := flag.NewFlagSet("configargs", flag.ContinueOnError)
	fs.StringVar(&cfg.GamesDir, "games-dir", "", "games dir")
	if err := ParseConfigFromArgs(&cfg, fs, []string{"-games-dir", "flag-games"}); err != nil {
		t.Fatalf("parse config and args: %v", err)
	}
	if cfg.GamesDir != "flag-games" {
		t.Fatalf("expected parsed flag games dir, got %q", cfg.GamesDir)
	}
	if cfg.Frames != 3 {
		t.Fatalf("expected env frames, got %d", cfg.Frames)
	}
}

func TestParseConfigRejectsNilTarget(t *testing.T) {
	if err := ParseConfig[testConfig](nil); err == nil {
		t.Fatal("expected nil target error")
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
}

func TestRunWithTelemetryRejectsMissingInputs(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetry(context.Background(), ServiceGaem, nil); err == nil {
		t.Fatal("expected missing run function error")
	}
}

func TestRunWithTelemetryPropagatesRunError(t *testing.T) {
	t.Setenv("GAEM_OTEL_ENDPOINT", "")

	want := errors.New("boom")
	var buf bytes.Buffer
	err := RunWithTelemetryAndOptions(context.Background(), ServiceGaem, RunOptions{
		ShutdownTimeout: time.Second,
		Logger:          log.New(&buf, "", 0),
	}, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected run error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no shutdown log, got %q", buf.String())
	}
}
