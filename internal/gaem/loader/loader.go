// Package loader composes decode, resolve, verify, and ingest into a single
// all-or-nothing package load.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/gaem/internal/gaem/container"
	"github.com/louisbranch/gaem/internal/gaem/game"
	"github.com/louisbranch/gaem/internal/gaem/integrity"
	"github.com/louisbranch/gaem/internal/gaem/manifest"
	"github.com/louisbranch/gaem/internal/gaem/resolver"
	apperrors "github.com/louisbranch/gaem/internal/platform/errors"
)

var tracer = otel.Tracer("github.com/louisbranch/gaem/internal/gaem/loader")

// Handle is an ingestor's opaque reference to one asset.
type Handle = any

// IngestRequest describes one verified asset.
type IngestRequest struct {
	// Path is the file location on disk.
	Path string
	// Name is the manifest-relative path.
	Name string
	Type manifest.AssetType
}

// Ingestor receives verified assets.
type Ingestor interface {
	Ingest(ctx context.Context, req IngestRequest) (Handle, error)
}

// Discarder is implemented by ingestors that can drop handles from a load
// that did not complete.
type Discarder interface {
	Discard(ctx context.Context, handles []Handle) error
}

// Stage names a load step.
type Stage string

const (
	StageDecode  Stage = "decode"
	StageResolve Stage = "resolve"
	StageVerify  Stage = "verify"
	StageIngest  Stage = "ingest"
)

// StageError reports which step of a load failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the failed stage in err's chain, or "".
func StageOf(err error) Stage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

// Config configures a loader.
type Config struct {
	// GamesDir holds package files and their asset folders.
	GamesDir string
	// Workers bounds parallel asset hashing. Zero uses the integrity default.
	Workers int
	// AllowOpenPackages admits packages without a secret key at initialize.
	AllowOpenPackages bool
	// Logger receives warnings and, when Verbose, step logs.
	Logger  *log.Logger
	Verbose bool
	// OnAPIError is passed to every game this loader builds.
	OnAPIError func(error)
}

// Loader loads packages from a games directory.
type Loader struct {
	cfg    Config
	logger *log.Logger
}

// New returns a loader for cfg.
func New(cfg Config) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = integrity.DefaultWorkers
	}
	return &Loader{cfg: cfg, logger: logger}
}

// Verified is a decoded package whose assets matched their checksums.
type Verified struct {
	Manifest manifest.Manifest
	Folder   string
	Results  []integrity.Result
}

// Verify decodes the package at path, resolves its folder, and checks every
// declared asset.
func (l *Loader) Verify(ctx context.Context, path string) (Verified, error) {
	var v Verified
	err := l.stage(ctx, StageDecode, func(context.Context) error {
		m, err := container.ReadFile(path)
		v.Manifest = m
		return err
	})
	if err != nil {
		return Verified{}, err
	}
	l.logf("decoded %s: %q with %d assets", path, v.Manifest.Title, len(v.Manifest.RequiredAssets))

	err = l.stage(ctx, StageResolve, func(context.Context) error {
		folder, err := resolver.Resolve(l.cfg.GamesDir, v.Manifest)
		v.Folder = folder
		return err
	})
	if err != nil {
		return Verified{}, err
	}
	l.logf("resolved %q to %s", v.Manifest.Title, v.Folder)

	err = l.stage(ctx, StageVerify, func(ctx context.Context) error {
		results, err := integrity.VerifyAssets(ctx, v.Folder, v.Manifest.RequiredAssets, l.cfg.Workers)
		v.Results = results
		return err
	})
	if err != nil {
		return Verified{}, err
	}
	for _, r := range v.Results {
		if !r.SizeMatches() {
			l.logger.Printf("asset %s: declared size %d, actual %d", r.Path, r.Asset.Size, r.Size)
		}
	}
	l.logf("verified %d assets", len(v.Results))
	return v, nil
}

// Load verifies the package at path, ingests every asset, and returns an
// unauthenticated game. On any failure nothing stays ingested: handles
// already produced are passed to the ingestor's Discard when it has one.
func (l *Loader) Load(ctx context.Context, path string, ingestor Ingestor) (_ *game.Game, err error) {
	if ingestor == nil {
		return nil, errors.New("ingestor is required")
	}
	ctx, span := tracer.Start(ctx, "gaem.load", trace.WithAttributes(attribute.String("gaem.package", path)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(StageOf(err)))
		}
		span.End()
	}()

	v, err := l.Verify(ctx, path)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("gaem.title", v.Manifest.Title))

	err = l.stage(ctx, StageIngest, func(ctx context.Context) error {
		return l.ingest(ctx, v, ingestor)
	})
	if err != nil {
		return nil, err
	}

	return game.New(v.Manifest, v.Folder, game.Options{
		Logger:     l.logger,
		AllowOpen:  l.cfg.AllowOpenPackages,
		OnAPIError: l.cfg.OnAPIError,
	}), nil
}

func (l *Loader) ingest(ctx context.Context, v Verified, ingestor Ingestor) error {
	handles := make([]Handle, 0, len(v.Manifest.RequiredAssets))
	for _, asset := range v.Manifest.RequiredAssets {
		if err := ctx.Err(); err != nil {
			l.discard(ctx, ingestor, handles)
			return err
		}
		path, err := integrity.AssetPath(v.Folder, asset.Path)
		if err != nil {
			l.discard(ctx, ingestor, handles)
			return err
		}
		handle, err := ingestor.Ingest(ctx, IngestRequest{Path: path, Name: asset.Path, Type: asset.AssetType})
		if err != nil {
			l.discard(ctx, ingestor, handles)
			if apperrors.CodeOf(err) == apperrors.CodeIngestFailed || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return apperrors.WrapWithMetadata(apperrors.CodeIngestFailed,
				fmt.Sprintf("ingest %s: %v", asset.Path, err),
				map[string]string{"path": asset.Path}, err)
		}
		handles = append(handles, handle)
		l.logf("ingested %s (%s)", asset.Path, asset.AssetType)
	}
	if err := ctx.Err(); err != nil {
		l.discard(ctx, ingestor, handles)
		return err
	}
	return nil
}

func (l *Loader) discard(ctx context.Context, ingestor Ingestor, handles []Handle) {
	if len(handles) == 0 {
		return
	}
	d, ok := ingestor.(Discarder)
	if !ok {
		return
	}
	if err := d.Discard(context.WithoutCancel(ctx), handles); err != nil {
		l.logger.Printf("discard %d ingested assets: %v", len(handles), err)
	}
}

func (l *Loader) stage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "gaem.load."+string(stage))
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

func (l *Loader) logf(format string, args ...any) {
	if !l.cfg.Verbose {
		return
	}
	l.logger.Printf(format, args...)
}
