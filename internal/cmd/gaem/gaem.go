// Package gaem implements the gaem command: discover, inspect, verify, and
// headless runs of game packages.
package gaem

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/message"

	"github.com/louisbranch/gaem/internal/gaem/assets"
	"github.com/louisbranch/gaem/internal/gaem/container"
	"github.com/louisbranch/gaem/internal/gaem/headless"
	"github.com/louisbranch/gaem/internal/gaem/integrity"
	"github.com/louisbranch/gaem/internal/gaem/loader"
	"github.com/louisbranch/gaem/internal/gaem/resolver"
	"github.com/louisbranch/gaem/internal/gaem/saves"
	savesqlite "github.com/louisbranch/gaem/internal/gaem/saves/sqlite"
	entrypoint "github.com/louisbranch/gaem/internal/platform/cmd"
	apperrors "github.com/louisbranch/gaem/internal/platform/errors"
	"github.com/louisbranch/gaem/internal/platform/i18n/catalog"
	"github.com/louisbranch/gaem/internal/platform/timeouts"
)

// Config holds gaem command configuration. Variables carry the GAEM_ prefix.
type Config struct {
	GamesDir  string        `env:"GAMES_DIR"           envDefault:"games"`
	SavesDB   string        `env:"SAVES_DB"            envDefault:"saves.db"`
	SecretKey string        `env:"SECRET_KEY"`
	Frames    int           `env:"FRAMES"              envDefault:"60"`
	FrameDT   time.Duration `env:"FRAME_DT"            envDefault:"16ms"`
	AllowOpen bool          `env:"ALLOW_OPEN_PACKAGES"`
	Verbose   bool          `env:"VERBOSE"`
	Workers   int           `env:"VERIFY_WORKERS"      envDefault:"4"`
	Locale    string        `env:"LOCALE"              envDefault:"en-US"`

	// Command is the first positional argument; Args are the rest.
	Command string
	Args    []string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.GamesDir, "games-dir", cfg.GamesDir, "directory holding packages and game folders")
	fs.StringVar(&cfg.SavesDB, "saves-db", cfg.SavesDB, "path to the save database")
	fs.IntVar(&cfg.Frames, "frames", cfg.Frames, "frames to run headless")
	fs.DurationVar(&cfg.FrameDT, "frame-dt", cfg.FrameDT, "time step per frame")
	fs.BoolVar(&cfg.AllowOpen, "allow-open", cfg.AllowOpen, "admit packages without a secret key")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable verbose logging")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "parallel asset hashing workers")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "output locale")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		cfg.Command = fs.Arg(0)
		cfg.Args = fs.Args()[1:]
	}
	return cfg, nil
}

type runner struct {
	cfg    Config
	out    io.Writer
	p      *message.Printer
	logger *log.Logger
}

// Run executes the configured command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	r := &runner{
		cfg:    cfg,
		out:    out,
		p:      catalog.Default().Printer(cfg.Locale),
		logger: log.New(errOut, "", 0),
	}

	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceGaem, entrypoint.RunOptions{Logger: r.logger}, r.dispatch)
}

func (r *runner) dispatch(ctx context.Context) error {
	switch r.cfg.Command {
	case "discover":
		return r.discover()
	case "inspect":
		return r.withPackage(r.inspect)
	case "verify":
		return r.withPackage(func(path string) error { return r.verify(ctx, path) })
	case "run":
		return r.withPackage(func(path string) error { return r.run(ctx, path) })
	case "":
		return errors.New(r.p.Sprintf("cli.usage"))
	default:
		return fmt.Errorf("unknown command %q: %s", r.cfg.Command, r.p.Sprintf("cli.usage"))
	}
}

// Describe renders err for the user: the failed load stage, if any, and the
// localized message for domain errors.
func Describe(err error, locale string) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	if _, ok := apperrors.As(err); ok {
		text = apperrors.UserMessage(err, locale)
	}
	if stage := loader.StageOf(err); stage != "" {
		return catalog.Default().Printer(locale).Sprintf("cli.error.stage", string(stage), text)
	}
	return text
}

func (r *runner) withPackage(fn func(path string) error) error {
	if len(r.cfg.Args) != 1 {
		return errors.New(r.p.Sprintf("cli.usage"))
	}
	return fn(r.packagePath(r.cfg.Args[0]))
}

// packagePath accepts a path to a package file or a bare name inside the
// games directory, with or without the extension.
func (r *runner) packagePath(arg string) string {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return arg
	}
	if filepath.Ext(arg) != container.Extension {
		arg += container.Extension
	}
	return filepath.Join(r.cfg.GamesDir, arg)
}

func (r *runner) println(key string, args ...any) {
	r.p.Fprintf(r.out, key, args...)
	fmt.Fprintln(r.out)
}

func (r *runner) loader() *loader.Loader {
	return loader.New(loader.Config{
		GamesDir:          r.cfg.GamesDir,
		Workers:           r.cfg.Workers,
		AllowOpenPackages: r.cfg.AllowOpen,
		Logger:            r.logger,
		Verbose:           r.cfg.Verbose,
	})
}

func (r *runner) discover() error {
	paths, err := resolver.Discover(r.cfg.GamesDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		r.println("cli.discover.none", r.cfg.GamesDir)
		return nil
	}
	r.println("cli.discover.header", len(paths), r.cfg.GamesDir)
	var titles []string
	for _, path := range paths {
		name := filepath.Base(path)
		m, err := container.ReadFile(path)
		if err != nil {
			r.println("cli.discover.invalid", name, apperrors.UserMessage(err, r.cfg.Locale))
			continue
		}
		titles = append(titles, m.Title)
		r.println("cli.discover.entry", name, m.Title, m.Version, m.Author)
	}

	collisions := resolver.Collisions(titles)
	folders := make([]string, 0, len(collisions))
	for folder := range collisions {
		folders = append(folders, folder)
	}
	sort.Strings(folders)
	for _, folder := range folders {
		quoted := make([]string, len(collisions[folder]))
		for i, title := range collisions[folder] {
			quoted[i] = fmt.Sprintf("%q", title)
		}
		r.println("cli.discover.collision", strings.Join(quoted, ", "), folder)
	}
	return nil
}

func (r *runner) inspect(path string) error {
	m, err := container.ReadFile(path)
	if err != nil {
		return &loader.StageError{Stage: loader.StageDecode, Err: err}
	}
	r.println("cli.inspect.title", m.Title)
	r.println("cli.inspect.id", m.ID)
	r.println("cli.inspect.author", m.Author)
	r.println("cli.inspect.version", m.Version)
	if m.Description != "" {
		r.println("cli.inspect.description", m.Description)
	}
	r.println("cli.inspect.entry_point", m.EntryPoint)
	r.println("cli.inspect.engine", m.EngineVersion)
	if m.Open() {
		r.println("cli.inspect.open")
	} else {
		r.println("cli.inspect.secret", integrity.Redact(m.SecretKeyHash))
	}
	r.println("cli.inspect.folder", filepath.Join(r.cfg.GamesDir, resolver.Sanitize(m.Title)))
	r.println("cli.inspect.assets", len(m.RequiredAssets))
	for _, a := range m.RequiredAssets {
		r.println("cli.inspect.asset", a.AssetType, a.Path, integrity.Redact(a.Checksum), a.Size)
	}
	return nil
}

func (r *runner) verify(ctx context.Context, path string) error {
	v, err := r.loader().Verify(ctx, path)
	if err != nil {
		return err
	}
	r.println("cli.verify.ok", filepath.Base(path), len(v.Results), v.Folder)
	return nil
}

func (r *runner) run(ctx context.Context, path string) (err error) {
	assetCatalog := assets.NewCatalog(r.logger)
	g, err := r.loader().Load(ctx, path, assetCatalog)
	if err != nil {
		return err
	}
	m := g.Manifest()

	store, err := savesqlite.Open(ctx, r.cfg.SavesDB)
	if err != nil {
		return fmt.Errorf("open saves: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close saves: %w", closeErr)
		}
	}()
	slot, err := saves.Open(ctx, store, m.ID.String())
	if err != nil {
		return err
	}

	host := headless.NewHost(assetCatalog)
	caps := host.Capabilities(slot)
	if err := g.Initialize(ctx, r.cfg.SecretKey, caps); err != nil {
		return err
	}

	renderErrors := 0
	for frame := 0; frame < r.cfg.Frames && ctx.Err() == nil; frame++ {
		g.Update(ctx, r.cfg.FrameDT, caps)
		if err := g.Render(ctx, caps); err != nil {
			renderErrors++
			r.logger.Printf("game %q frame %d: %v", m.Title, g.Frame(), err)
		}
		host.Input.EndFrame()
	}

	if err := g.Terminate(ctx, caps); err != nil {
		r.logger.Printf("game %q terminate: %v", m.Title, err)
	}
	host.Audio.StopAll()
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.SaveFlush)
	defer cancel()
	if err := slot.Flush(flushCtx); err != nil {
		return fmt.Errorf("flush saves: %w", err)
	}

	r.println("cli.run.frames", m.Title, g.Frame(), g.State())
	if renderErrors > 0 {
		r.println("cli.run.render_errors", m.Title, renderErrors)
	}
	return ctx.Err()
}
