// Package script hosts a sandboxed Lua environment for one game and exposes
// the engine API to it.
//
// The sandbox opens only the base, string, table, math, and bit32 libraries,
// and removes the base functions that reach the filesystem or compile
// arbitrary chunks. Host capabilities passed to Run and Invoke are visible to
// API functions only for the duration of that call.
package script

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Shopify/go-lua"

	apperrors "github.com/louisbranch/gaem/internal/platform/errors"
)

// Phase names the lifecycle step a script error occurred in.
type Phase string

const (
	PhaseLoad    Phase = "load"
	PhaseInit    Phase = "init"
	PhaseUpdate  Phase = "update"
	PhaseRender  Phase = "render"
	PhaseCleanup Phase = "cleanup"
)

// Callback returns the global function name invoked for a phase. Load has no
// callback.
func (p Phase) Callback() string {
	if p == PhaseLoad {
		return ""
	}
	return string(p)
}

var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "collectgarbage"}

// Options configures a new environment.
type Options struct {
	// Name labels log lines and chunk names, usually the game title.
	Name string
	// Logger receives script print output and API call failures.
	Logger *log.Logger
	// OnAPIError observes every rejected API call.
	OnAPIError func(error)
}

// Env is one game's Lua state. It is not safe for concurrent use; the game
// serializes lifecycle calls.
type Env struct {
	state      *lua.State
	name       string
	logger     *log.Logger
	onAPIError func(error)

	ctx  context.Context
	caps Capabilities
}

// New creates a sandboxed environment with the engine API installed.
func New(opts Options) *Env {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	e := &Env{
		state:      lua.NewState(),
		name:       opts.Name,
		logger:     logger,
		onAPIError: opts.OnAPIError,
		ctx:        context.Background(),
	}
	e.openSandbox()
	e.installAPI()
	return e
}

// Closed reports whether Close has been called.
func (e *Env) Closed() bool {
	return e.state == nil
}

// Close drops the Lua state. Further calls fail with INVALID_STATE.
func (e *Env) Close() {
	e.state = nil
	e.caps = Capabilities{}
	e.ctx = context.Background()
}

// Run compiles and executes a chunk's top-level code.
func (e *Env) Run(ctx context.Context, caps Capabilities, source, chunkName string) error {
	if e.Closed() {
		return closedError()
	}
	release := e.lend(ctx, caps)
	defer release()

	l := e.state
	base := l.Top()
	defer l.SetTop(base)

	if err := lua.LoadBuffer(l, source, "@"+chunkName, "t"); err != nil {
		return scriptError(PhaseLoad, errorMessage(l, base, err), err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return scriptError(PhaseLoad, errorMessage(l, base, err), err)
	}
	return nil
}

// HasCallback reports whether the script defines a global function name.
func (e *Env) HasCallback(name string) bool {
	if e.Closed() || name == "" {
		return false
	}
	l := e.state
	base := l.Top()
	defer l.SetTop(base)
	l.Global(name)
	return l.IsFunction(-1)
}

// Invoke calls the phase's callback with numeric arguments. It reports
// whether the callback exists; a missing callback is not an error.
func (e *Env) Invoke(ctx context.Context, caps Capabilities, phase Phase, params ...float64) (bool, error) {
	if e.Closed() {
		return false, closedError()
	}
	name := phase.Callback()
	if name == "" {
		return false, nil
	}
	release := e.lend(ctx, caps)
	defer release()

	l := e.state
	base := l.Top()
	defer l.SetTop(base)

	l.Global(name)
	if !l.IsFunction(-1) {
		return false, nil
	}
	for _, p := range params {
		l.PushNumber(p)
	}
	if err := l.ProtectedCall(len(params), 0, 0); err != nil {
		return true, scriptError(phase, errorMessage(l, base, err), err)
	}
	return true, nil
}

func (e *Env) lend(ctx context.Context, caps Capabilities) func() {
	if ctx == nil {
		ctx = context.Background()
	}
	e.ctx = ctx
	e.caps = caps
	return func() {
		e.ctx = context.Background()
		e.caps = Capabilities{}
	}
}

func (e *Env) openSandbox() {
	l := e.state
	libs := []lua.RegistryFunction{
		{Name: "_G", Function: lua.BaseOpen},
		{Name: "string", Function: lua.StringOpen},
		{Name: "table", Function: lua.TableOpen},
		{Name: "math", Function: lua.MathOpen},
		{Name: "bit32", Function: lua.Bit32Open},
	}
	for _, lib := range libs {
		lua.Require(l, lib.Name, lib.Function, true)
		l.Pop(1)
	}
	for _, name := range removedGlobals {
		l.PushNil()
		l.SetGlobal(name)
	}
	l.Register("print", e.print)
}

func (e *Env) installAPI() {
	l := e.state
	l.NewTable()
	l.PushString(APIVersion)
	l.SetField(-2, "version")

	namespaces := map[string][]lua.RegistryFunction{}
	var order []string
	for _, b := range bindings {
		if _, ok := namespaces[b.namespace]; !ok {
			order = append(order, b.namespace)
		}
		namespaces[b.namespace] = append(namespaces[b.namespace], lua.RegistryFunction{
			Name:     b.name,
			Function: e.hostFunction(b),
		})
	}
	for _, ns := range order {
		l.NewTable()
		lua.SetFunctions(l, namespaces[ns], 0)
		l.SetField(-2, ns)
	}
	l.SetGlobal(GlobalName)
}

// hostFunction adapts a binding to a Lua function. Failures return nil plus a
// message to the script instead of raising, so one bad call never unwinds the
// calling frame.
func (e *Env) hostFunction(b binding) lua.Function {
	return func(l *lua.State) (n int) {
		defer func() {
			if r := recover(); r != nil {
				n = e.rejectCall(l, b, fmt.Errorf("host panic: %v", r))
			}
		}()
		a, err := parseArgs(l, b.params)
		if err != nil {
			return e.rejectCall(l, b, err)
		}
		results, err := b.call(e.ctx, e.caps, a)
		if err != nil {
			return e.rejectCall(l, b, err)
		}
		for _, r := range results {
			pushValue(l, r, 0)
		}
		return len(results)
	}
}

func (e *Env) rejectCall(l *lua.State, b binding, cause error) int {
	err := apperrors.WrapWithMetadata(apperrors.CodeAPICall,
		fmt.Sprintf("%s.%s: %v", GlobalName, b.qualifiedName(), cause),
		map[string]string{"function": GlobalName + "." + b.qualifiedName()},
		cause)
	e.logf("api call rejected: %v", err)
	if e.onAPIError != nil {
		e.onAPIError(err)
	}
	l.SetTop(0)
	l.PushNil()
	l.PushString(err.Error())
	return 2
}

func (e *Env) print(l *lua.State) int {
	n := l.Top()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		switch l.TypeOf(i) {
		case lua.TypeString, lua.TypeNumber:
			s, _ := l.ToString(i)
			parts = append(parts, s)
		case lua.TypeBoolean:
			parts = append(parts, fmt.Sprint(l.ToBoolean(i)))
		case lua.TypeNil:
			parts = append(parts, "nil")
		default:
			parts = append(parts, lua.TypeNameOf(l, i))
		}
	}
	e.logf("%s", strings.Join(parts, "\t"))
	return 0
}

func (e *Env) logf(format string, args ...any) {
	prefix := "[script]"
	if e.name != "" {
		prefix = "[script " + e.name + "]"
	}
	e.logger.Printf("%s "+format, append([]any{prefix}, args...)...)
}

// errorMessage reads the error object a failed load or call left above base.
func errorMessage(l *lua.State, base int, err error) string {
	if l.Top() > base {
		if msg, ok := l.ToString(-1); ok && msg != "" {
			return msg
		}
	}
	if err != nil {
		return err.Error()
	}
	return "unknown script error"
}

func scriptError(phase Phase, message string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeScript,
		fmt.Sprintf("%s: %s", phase, message),
		map[string]string{"phase": string(phase), "message": message},
		cause)
}

func closedError() error {
	return apperrors.WithMetadata(apperrors.CodeInvalidState, "script environment closed",
		map[string]string{"operation": "run scripts", "state": "terminated"})
}
