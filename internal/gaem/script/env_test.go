package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"testing"

	apperrors "github.com/louisbranch/gaem/internal/platform/errors"
)

type drawCall struct {
	op   string
	args []any
}

type fakeRenderer struct {
	calls   []drawCall
	failOn  string
	panicOn string
}

func (f *fakeRenderer) record(op string, args ...any) error {
	if op == f.panicOn {
		panic("renderer exploded")
	}
	f.calls = append(f.calls, drawCall{op: op, args: args})
	if op == f.failOn {
		return errors.New("sprite not loaded")
	}
	return nil
}

func (f *fakeRenderer) Clear(c Color) { _ = f.record("clear", c) }
func (f *fakeRenderer) DrawSprite(name string, x, y, rotation, scale float64) error {
	return f.record("draw_sprite", name, x, y, rotation, scale)
}
func (f *fakeRenderer) DrawText(text string, x, y, size float64, c Color) error {
	return f.record("draw_text", text, x, y, size, c)
}
func (f *fakeRenderer) DrawRect(x, y, w, h float64, c Color) error {
	return f.record("draw_rect", x, y, w, h, c)
}
func (f *fakeRenderer) DrawLine(x1, y1, x2, y2, thickness float64, c Color) error {
	return f.record("draw_line", x1, y1, x2, y2, thickness, c)
}
func (f *fakeRenderer) DrawCircle(x, y, radius float64, c Color) error {
	return f.record("draw_circle", x, y, radius, c)
}
func (f *fakeRenderer) SetCamera(x, y, zoom float64) { _ = f.record("set_camera", x, y, zoom) }

type fakeInput struct {
	pressed map[string]bool
}

func (f fakeInput) IsKeyPressed(key string) bool       { return f.pressed[key] }
func (f fakeInput) IsKeyJustPressed(key string) bool   { return f.pressed[key] }
func (f fakeInput) IsKeyJustReleased(string) bool      { return false }
func (f fakeInput) IsMousePressed(button string) bool  { return f.pressed["mouse:"+button] }
func (f fakeInput) MousePosition() Vec2                { return Vec2{X: 10, Y: 20} }
func (f fakeInput) IsActionPressed(action string) bool { return f.pressed["action:"+action] }
func (f fakeInput) Movement() Vec2                     { return Vec2{X: 1, Y: 0} }

type fakeSaves struct {
	data    map[string]any
	flushes int
}

func (f *fakeSaves) Read(key string, fallback any) any {
	if v, ok := f.data[key]; ok {
		return v
	}
	return fallback
}
func (f *fakeSaves) Write(key string, value any) error {
	if f.data == nil {
		f.data = map[string]any{}
	}
	f.data[key] = value
	return nil
}
func (f *fakeSaves) Remove(key string) bool {
	_, ok := f.data[key]
	delete(f.data, key)
	return ok
}
func (f *fakeSaves) Flush(context.Context) error {
	f.flushes++
	return nil
}

func newTestEnv(t *testing.T) (*Env, *bytes.Buffer, *[]error) {
	t.Helper()
	var logs bytes.Buffer
	var apiErrors []error
	env := New(Options{
		Name:       "test",
		Logger:     log.New(&logs, "", 0),
		OnAPIError: func(err error) { apiErrors = append(apiErrors, err) },
	})
	return env, &logs, &apiErrors
}

func run(t *testing.T, env *Env, caps Capabilities, source string) {
	t.Helper()
	if err := env.Run(context.Background(), caps, source, "main.lua"); err != nil {
		t.Fatalf("run script: %v", err)
	}
}

func TestSandboxRemovesUnsafeGlobals(t *testing.T) {
	env, _, _ := newTestEnv(t)
	run(t, env, Capabilities{}, `
		result = {}
		for _, name in ipairs({"dofile", "loadfile", "load", "require", "io", "os", "debug", "package"}) do
			result[#result + 1] = tostring(_G[name] == nil)
		end
		summary = table.concat(result, ",")
	`)
	var saves fakeSaves
	run(t, env, Capabilities{Saves: &saves}, `engine.saves.write("summary", summary)`)
	if got := saves.data["summary"]; got != "true,true,true,true,true,true,true,true" {
		t.Fatalf("expected unsafe globals removed, got %v", got)
	}
}

func TestSandboxKeepsSafeLibraries(t *testing.T) {
	env, _, _ := newTestEnv(t)
	var saves fakeSaves
	run(t, env, Capabilities{Saves: &saves}, `
		engine.saves.write("v", string.upper("ok") .. math.floor(2.7) .. bit32.band(6, 3))
		engine.saves.write("version", engine.version)
	`)
	if saves.data["v"] != "OK22" {
		t.Fatalf("unexpected library output %v", saves.data["v"])
	}
	if saves.data["version"] != APIVersion {
		t.Fatalf("unexpected api version %v", saves.data["version"])
	}
}

func TestPrintGoesToLogger(t *testing.T) {
	env, logs, _ := newTestEnv(t)
	run(t, env, Capabilities{}, `print("hello", 42, true, nil, {})`)
	if !strings.Contains(logs.String(), "[script test] hello\t42\ttrue\tnil\ttable") {
		t.Fatalf("unexpected print output %q", logs.String())
	}
}

func TestRunReportsSyntaxAndRuntimeErrors(t *testing.T) {
	env, _, _ := newTestEnv(t)

	err := env.Run(context.Background(), Capabilities{}, "function (", "main.lua")
	domainErr, ok := apperrors.As(err)
	if !ok || domainErr.Code != apperrors.CodeScript || domainErr.Meta("phase") != "load" {
		t.Fatalf("expected load script error, got %v", err)
	}

	err = env.Run(context.Background(), Capabilities{}, `error("kaboom")`, "main.lua")
	domainErr, ok = apperrors.As(err)
	if !ok || !strings.Contains(domainErr.Meta("message"), "kaboom") {
		t.Fatalf("expected runtime message to surface, got %v", err)
	}
}

func TestInvokeCallbacks(t *testing.T) {
	env, _, _ := newTestEnv(t)
	var saves fakeSaves
	caps := Capabilities{Saves: &saves}
	run(t, env, caps, `
		total = 0
		function update(dt) total = total + dt; engine.saves.write("total", total) end
		function render() error("bad frame") end
	`)

	if !env.HasCallback("update") || env.HasCallback("init") {
		t.Fatal("unexpected callback detection")
	}

	ok, err := env.Invoke(context.Background(), caps, PhaseInit)
	if ok || err != nil {
		t.Fatalf("missing init should be skipped, got %v %v", ok, err)
	}

	ok, err = env.Invoke(context.Background(), caps, PhaseUpdate, 0.5)
	if !ok || err != nil {
		t.Fatalf("update: %v %v", ok, err)
	}
	if saves.data["total"] != 0.5 {
		t.Fatalf("expected dt passed as seconds, got %v", saves.data["total"])
	}

	ok, err = env.Invoke(context.Background(), caps, PhaseRender)
	if !ok || apperrors.CodeOf(err) != apperrors.CodeScript {
		t.Fatalf("expected render script error, got %v %v", ok, err)
	}
	if domainErr, _ := apperrors.As(err); domainErr.Meta("phase") != "render" {
		t.Fatalf("expected render phase, got %q", domainErr.Meta("phase"))
	}
}

func TestRendererBindings(t *testing.T) {
	env, _, apiErrors := newTestEnv(t)
	renderer := &fakeRenderer{}
	run(t, env, Capabilities{Renderer: renderer}, `
		engine.renderer.clear({0.25, 0.5, 0.75})
		engine.renderer.draw_sprite("ship", 1, 2)
		engine.renderer.draw_text("score", 5, 6, 24, {r = 1, g = 0, b = 0, a = 0.5})
		engine.renderer.draw_rect(0, 0, 10, 20)
		engine.renderer.draw_line(0, 0, 1, 1)
		engine.renderer.draw_circle(3, 3, 2, {0, 1, 0})
		engine.renderer.set_camera(100, 50)
	`)
	if len(*apiErrors) != 0 {
		t.Fatalf("unexpected api errors: %v", *apiErrors)
	}
	want := []drawCall{
		{op: "clear", args: []any{Color{R: 0.25, G: 0.5, B: 0.75, A: 1}}},
		{op: "draw_sprite", args: []any{"ship", 1.0, 2.0, 0.0, 1.0}},
		{op: "draw_text", args: []any{"score", 5.0, 6.0, 24.0, Color{R: 1, A: 0.5}}},
		{op: "draw_rect", args: []any{0.0, 0.0, 10.0, 20.0, White}},
		{op: "draw_line", args: []any{0.0, 0.0, 1.0, 1.0, 1.0, White}},
		{op: "draw_circle", args: []any{3.0, 3.0, 2.0, Color{G: 1, A: 1}}},
		{op: "set_camera", args: []any{100.0, 50.0, 1.0}},
	}
	if !reflect.DeepEqual(renderer.calls, want) {
		t.Fatalf("renderer calls mismatch:\n got %#v\nwant %#v", renderer.calls, want)
	}
}

func TestAPICallErrorsDoNotAbortScript(t *testing.T) {
	env, logs, apiErrors := newTestEnv(t)
	renderer := &fakeRenderer{failOn: "draw_sprite", panicOn: "set_camera"}
	var saves fakeSaves
	caps := Capabilities{Renderer: renderer, Saves: &saves}

	run(t, env, caps, `
		local results = {}
		local function try(label, ok, msg)
			results[#results + 1] = label .. "=" .. tostring(ok) .. ":" .. tostring(msg ~= nil)
		end
		try("type", engine.renderer.draw_rect("x", 0, 1, 1))
		try("arity", engine.renderer.draw_circle(1, 2, 3, nil, "extra"))
		try("missing", engine.renderer.draw_sprite())
		try("color", engine.renderer.clear({2, 0, 0}))
		try("capability", engine.renderer.draw_sprite("ghost", 0, 0))
		try("panic", engine.renderer.set_camera(0, 0))
		try("unavailable", engine.audio.stop_music())
		engine.saves.write("after", table.concat(results, ","))
	`)

	want := "type=nil:true,arity=nil:true,missing=nil:true,color=nil:true,capability=nil:true,panic=nil:true,unavailable=nil:true"
	if saves.data["after"] != want {
		t.Fatalf("script did not continue past rejected calls:\n got %v\nwant %v", saves.data["after"], want)
	}
	if len(*apiErrors) != 7 {
		t.Fatalf("expected 7 api errors, got %d", len(*apiErrors))
	}
	for _, err := range *apiErrors {
		if apperrors.CodeOf(err) != apperrors.CodeAPICall {
			t.Fatalf("expected api call error, got %v", err)
		}
	}
	first, _ := apperrors.As((*apiErrors)[0])
	if first.Meta("function") != "engine.renderer.draw_rect" {
		t.Fatalf("expected function metadata, got %q", first.Meta("function"))
	}
	if !strings.Contains(first.Error(), "expected number, got string") {
		t.Fatalf("expected type detail, got %v", first)
	}
	if !strings.Contains(logs.String(), "api call rejected") {
		t.Fatal("expected api errors to be logged")
	}
}

func TestInputBindings(t *testing.T) {
	env, _, _ := newTestEnv(t)
	var saves fakeSaves
	caps := Capabilities{
		Input: fakeInput{pressed: map[string]bool{"space": true, "mouse:left": true, "action:jump": true}},
		Saves: &saves,
	}
	run(t, env, caps, `
		local pos = engine.input.mouse_position()
		local move = engine.input.movement()
		engine.saves.write("input", {
			space = engine.input.is_key_pressed("space"),
			a = engine.input.is_key_pressed("a"),
			left = engine.input.is_mouse_pressed("left"),
			jump = engine.input.is_action_pressed("jump"),
			x = pos.x, y = pos.y, mx = move.x,
		})
	`)
	want := map[string]any{"space": true, "a": false, "left": true, "jump": true, "x": int64(10), "y": int64(20), "mx": int64(1)}
	if !reflect.DeepEqual(saves.data["input"], want) {
		t.Fatalf("unexpected input snapshot %#v", saves.data["input"])
	}
}

func TestSavesBindingsConvertValues(t *testing.T) {
	env, _, apiErrors := newTestEnv(t)
	saves := &fakeSaves{data: map[string]any{"best": int64(7)}}
	caps := Capabilities{Saves: saves}
	run(t, env, caps, `
		local best = engine.saves.read("best", 0)
		local missing = engine.saves.read("nope", "fallback")
		engine.saves.write("snapshot", {best = best, missing = missing, list = {1, 2.5, "three"}, empty = {}})
		engine.saves.remove("best")
		engine.saves.flush()
		local ok, msg = engine.saves.write("fn", function() end)
		engine.saves.write("fn_rejected", ok == nil and msg ~= nil)
		local cyclic = {}
		cyclic.self = cyclic
		engine.saves.write("cyclic", cyclic)
	`)

	snapshot, ok := saves.data["snapshot"].(map[string]any)
	if !ok {
		t.Fatalf("expected snapshot map, got %#v", saves.data["snapshot"])
	}
	want := map[string]any{
		"best":    int64(7),
		"missing": "fallback",
		"list":    []any{int64(1), 2.5, "three"},
		"empty":   map[string]any{},
	}
	if !reflect.DeepEqual(snapshot, want) {
		t.Fatalf("snapshot mismatch:\n got %#v\nwant %#v", snapshot, want)
	}
	if _, ok := saves.data["best"]; ok {
		t.Fatal("expected best removed")
	}
	if saves.flushes != 1 {
		t.Fatalf("expected one flush, got %d", saves.flushes)
	}
	if saves.data["fn_rejected"] != true {
		t.Fatal("expected function values to be rejected")
	}
	if _, ok := saves.data["cyclic"]; ok {
		t.Fatal("expected cyclic table to be rejected")
	}
	if len(*apiErrors) != 2 {
		t.Fatalf("expected 2 api errors, got %d", len(*apiErrors))
	}
}

func TestNestedTablesRejectedPastMaxDepth(t *testing.T) {
	tests := []struct {
		name   string
		source string
		stored bool
	}{
		{name: "depth 20", source: "local v = nest(20)", stored: true},
		{name: "max depth", source: fmt.Sprintf("local v = nest(%d)", MaxValueDepth), stored: true},
		{name: "past max depth", source: fmt.Sprintf("local v = nest(%d)", MaxValueDepth+1)},
		{name: "cyclic", source: "local v = {}; v.self = v"},
		{name: "cyclic list", source: "local v = {}; v[1] = v"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _, apiErrors := newTestEnv(t)
			saves := &fakeSaves{}
			run(t, env, Capabilities{Saves: saves}, `
				local function nest(n)
					local root = {}
					local node = root
					for i = 2, n do
						node.child = {}
						node = node.child
					end
					return root
				end
				`+tt.source+`
				local ok, msg = engine.saves.write("value", v)
				engine.saves.write("after", tostring(ok) .. "|" .. tostring(msg ~= nil))
			`)

			_, stored := saves.data["value"]
			if stored != tt.stored {
				t.Fatalf("stored = %v, want %v", stored, tt.stored)
			}
			want := "nil|true"
			if tt.stored {
				want = "true|false"
			}
			if saves.data["after"] != want {
				t.Fatalf("statement after the call saw %v, want %s", saves.data["after"], want)
			}
			if tt.stored {
				if len(*apiErrors) != 0 {
					t.Fatalf("unexpected api errors %v", *apiErrors)
				}
				return
			}
			if len(*apiErrors) != 1 || apperrors.CodeOf((*apiErrors)[0]) != apperrors.CodeAPICall {
				t.Fatalf("expected one api call error, got %v", *apiErrors)
			}
			if !strings.Contains((*apiErrors)[0].Error(), "nested deeper than") {
				t.Fatalf("expected depth detail, got %v", (*apiErrors)[0])
			}
		})
	}
}

func TestCapabilitiesAreNotRetainedAfterCall(t *testing.T) {
	env, _, apiErrors := newTestEnv(t)
	renderer := &fakeRenderer{}
	run(t, env, Capabilities{Renderer: renderer}, `function render() engine.renderer.clear() end`)

	if _, err := env.Invoke(context.Background(), Capabilities{}, PhaseRender); err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(renderer.calls) != 0 {
		t.Fatal("renderer from an earlier call must not be reachable")
	}
	if len(*apiErrors) != 1 {
		t.Fatalf("expected unavailable renderer error, got %d", len(*apiErrors))
	}
}

func TestClosedEnvRejectsCalls(t *testing.T) {
	env, _, _ := newTestEnv(t)
	env.Close()
	if !env.Closed() {
		t.Fatal("expected closed env")
	}
	if err := env.Run(context.Background(), Capabilities{}, "x = 1", "main.lua"); apperrors.CodeOf(err) != apperrors.CodeInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := env.Invoke(context.Background(), Capabilities{}, PhaseUpdate, 1); apperrors.CodeOf(err) != apperrors.CodeInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if env.HasCallback("update") {
		t.Fatal("closed env has no callbacks")
	}
}

func TestEnvironmentsAreIsolated(t *testing.T) {
	a, _, _ := newTestEnv(t)
	b, _, _ := newTestEnv(t)
	run(t, a, Capabilities{}, `shared = "a"; function update() end`)

	var saves fakeSaves
	run(t, b, Capabilities{Saves: &saves}, `engine.saves.write("seen", tostring(shared))`)
	if saves.data["seen"] != "nil" {
		t.Fatalf("expected isolated globals, got %v", saves.data["seen"])
	}
	if b.HasCallback("update") {
		t.Fatal("callbacks must not leak across environments")
	}
}

func TestFunctionsListsEveryNamespace(t *testing.T) {
	names := Functions()
	seen := map[string]bool{}
	for _, name := range names {
		seen[strings.SplitN(name, ".", 2)[0]] = true
	}
	for _, ns := range []string{"renderer", "input", "audio", "saves"} {
		if !seen[ns] {
			t.Fatalf("expected namespace %s in %v", ns, names)
		}
	}
	if len(names) != len(bindings) {
		t.Fatalf("expected %d functions, got %d", len(bindings), len(names))
	}
}
