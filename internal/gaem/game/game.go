// Package game binds a verified package to a script environment and drives
// its lifecycle.
//
// A Game starts Unauthenticated. Initialize checks the secret key, runs the
// entry-point script, and calls its init callback, ending in Running or
// Faulted. Update and Render are no-ops outside Running. Terminate runs the
// cleanup callback once and releases the script environment.
package game

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/gaem/internal/gaem/integrity"
	"github.com/louisbranch/gaem/internal/gaem/manifest"
	"github.com/louisbranch/gaem/internal/gaem/script"
	apperrors "github.com/louisbranch/gaem/internal/platform/errors"
)

var tracer = otel.Tracer("github.com/louisbranch/gaem/internal/gaem/game")

// State is a game's lifecycle position.
type State int

const (
	StateUnauthenticated State = iota
	StateInitialized
	StateRunning
	StateFaulted
	StateTerminated
)

var stateNames = [...]string{
	StateUnauthenticated: "Unauthenticated",
	StateInitialized:     "Initialized",
	StateRunning:         "Running",
	StateFaulted:         "Faulted",
	StateTerminated:      "Terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options configures a game instance.
type Options struct {
	// Logger receives update failures and script output.
	Logger *log.Logger
	// AllowOpen admits packages that declare no secret key.
	AllowOpen bool
	// OnAPIError observes rejected engine API calls.
	OnAPIError func(error)
}

// Game is one loaded package. Lifecycle calls are serialized.
type Game struct {
	mu sync.Mutex

	manifest   manifest.Manifest
	folder     string
	logger     *log.Logger
	allowOpen  bool
	onAPIError func(error)

	state State
	env   *script.Env
	frame uint64
	err   error
}

// New returns an unauthenticated game bound to a manifest and its folder.
func New(m manifest.Manifest, folder string, opts Options) *Game {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	return &Game{
		manifest:   m,
		folder:     folder,
		logger:     logger,
		allowOpen:  opts.AllowOpen,
		onAPIError: opts.OnAPIError,
		state:      StateUnauthenticated,
	}
}

// Manifest returns the package manifest.
func (g *Game) Manifest() manifest.Manifest {
	return g.manifest
}

// Folder returns the resolved asset folder.
func (g *Game) Folder() string {
	return g.folder
}

// State returns the current lifecycle state.
func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Frame returns the number of update calls made while running.
func (g *Game) Frame() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frame
}

// Err returns the error that faulted the game, if any.
func (g *Game) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Initialize authenticates with secret, runs the entry-point script, and
// calls init. A rejected secret leaves the game Unauthenticated without
// touching the script; a script failure leaves it Faulted.
func (g *Game) Initialize(ctx context.Context, secret string, caps script.Capabilities) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ctx, span := tracer.Start(ctx, "gaem.initialize", trace.WithAttributes(
		attribute.String("gaem.title", g.manifest.Title),
		attribute.String("gaem.entry_point", g.manifest.EntryPoint),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		}
		span.End()
	}()

	if g.state != StateUnauthenticated {
		return apperrors.WithMetadata(apperrors.CodeInvalidState,
			fmt.Sprintf("initialize from %s", g.state),
			map[string]string{"operation": "initialize", "state": g.state.String()})
	}
	if err := g.authenticate(secret); err != nil {
		return err
	}

	source, err := g.readEntryPoint()
	if err != nil {
		return g.fault(err)
	}

	g.state = StateInitialized
	g.env = script.New(script.Options{
		Name:       g.manifest.Title,
		Logger:     g.logger,
		OnAPIError: g.onAPIError,
	})
	if err := g.env.Run(ctx, caps, source, g.manifest.EntryPoint); err != nil {
		return g.fault(err)
	}
	if _, err := g.env.Invoke(ctx, caps, script.PhaseInit); err != nil {
		return g.fault(err)
	}
	g.state = StateRunning
	return nil
}

// Update calls the update callback with dt in seconds. Failures are logged
// and the game keeps running.
func (g *Game) Update(ctx context.Context, dt time.Duration, caps script.Capabilities) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateRunning {
		return
	}
	g.frame++
	if _, err := g.env.Invoke(ctx, caps, script.PhaseUpdate, dt.Seconds()); err != nil {
		g.logger.Printf("game %q frame %d: %v", g.manifest.Title, g.frame, err)
	}
}

// Render calls the render callback. A failure is returned to the caller and
// the game stays Running.
func (g *Game) Render(ctx context.Context, caps script.Capabilities) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateRunning {
		return nil
	}
	_, err := g.env.Invoke(ctx, caps, script.PhaseRender)
	return err
}

// Terminate calls cleanup when the script is live and releases the
// environment. Later calls do nothing.
func (g *Game) Terminate(ctx context.Context, caps script.Capabilities) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateTerminated {
		return nil
	}
	var err error
	if g.env != nil && !g.env.Closed() {
		_, err = g.env.Invoke(ctx, caps, script.PhaseCleanup)
		g.env.Close()
	}
	g.env = nil
	g.state = StateTerminated
	if err != nil {
		g.logger.Printf("game %q cleanup: %v", g.manifest.Title, err)
	}
	return err
}

func (g *Game) authenticate(secret string) error {
	if g.manifest.Open() {
		if g.allowOpen {
			return nil
		}
		return apperrors.New(apperrors.CodeAuthentication, "package declares no secret key")
	}
	return integrity.Authenticate(g.manifest.SecretKeyHash, secret)
}

func (g *Game) readEntryPoint() (string, error) {
	path, err := integrity.AssetPath(g.folder, g.manifest.EntryPoint)
	if err != nil {
		return "", entryPointError(g.manifest.EntryPoint, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", entryPointError(g.manifest.EntryPoint, err)
	}
	if asset, ok := g.manifest.EntryAsset(); ok {
		if err := integrity.VerifyContent(asset, data); err != nil {
			return "", err
		}
	} else {
		g.logger.Printf("game %q: entry point %s is not a declared asset; its checksum is not verified", g.manifest.Title, g.manifest.EntryPoint)
	}
	return string(data), nil
}

func (g *Game) fault(err error) error {
	if g.env != nil {
		g.env.Close()
	}
	g.state = StateFaulted
	g.err = err
	return err
}

func entryPointError(entry string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeScript,
		fmt.Sprintf("load entry point %s: %v", entry, cause),
		map[string]string{"phase": string(script.PhaseLoad), "message": cause.Error()},
		cause)
}
