package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shopify/go-lua"
)

// APIVersion is exposed to scripts as engine.version.
const APIVersion = "1"

// GlobalName is the global table holding the API namespaces.
const GlobalName = "engine"

type argKind int

const (
	kindNumber argKind = iota
	kindString
	kindBool
	kindColor
	kindValue
)

func (k argKind) String() string {
	switch k {
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	case kindBool:
		return "boolean"
	case kindColor:
		return "color table"
	default:
		return "value"
	}
}

type param struct {
	name     string
	kind     argKind
	optional bool
}

// args holds validated arguments by position; omitted optionals are nil.
type args []any

func (a args) number(i int, fallback float64) float64 {
	if v, ok := a[i].(float64); ok {
		return v
	}
	return fallback
}

func (a args) str(i int) string {
	v, _ := a[i].(string)
	return v
}

func (a args) boolean(i int, fallback bool) bool {
	if v, ok := a[i].(bool); ok {
		return v
	}
	return fallback
}

func (a args) color(i int, fallback Color) Color {
	if v, ok := a[i].(Color); ok {
		return v
	}
	return fallback
}

// handler runs one API function against the borrowed capabilities and returns
// the values to push back to the script.
type handler func(ctx context.Context, caps Capabilities, a args) ([]any, error)

type binding struct {
	namespace string
	name      string
	params    []param
	call      handler
}

func (b binding) qualifiedName() string {
	return b.namespace + "." + b.name
}

var errUnavailable = errors.New("capability unavailable")

func num(name string) param { return param{name: name, kind: kindNumber} }
func optNum(name string) param { return param{name: name, kind: kindNumber, optional: true} }
func str(name string) param { return param{name: name, kind: kindString} }
func optBool(name string) param { return param{name: name, kind: kindBool, optional: true} }
func optColor(name string) param { return param{name: name, kind: kindColor, optional: true} }

func withRenderer(fn func(Renderer, args) ([]any, error)) handler {
	return func(_ context.Context, caps Capabilities, a args) ([]any, error) {
		if caps.Renderer == nil {
			return nil, errUnavailable
		}
		return fn(caps.Renderer, a)
	}
}

func withInput(fn func(Input, args) ([]any, error)) handler {
	return func(_ context.Context, caps Capabilities, a args) ([]any, error) {
		if caps.Input == nil {
			return nil, errUnavailable
		}
		return fn(caps.Input, a)
	}
}

func withAudio(fn func(Audio, args) ([]any, error)) handler {
	return func(_ context.Context, caps Capabilities, a args) ([]any, error) {
		if caps.Audio == nil {
			return nil, errUnavailable
		}
		return fn(caps.Audio, a)
	}
}

func withSaves(fn func(context.Context, Saves, args) ([]any, error)) handler {
	return func(ctx context.Context, caps Capabilities, a args) ([]any, error) {
		if caps.Saves == nil {
			return nil, errUnavailable
		}
		return fn(ctx, caps.Saves, a)
	}
}

func boolResult(v bool) ([]any, error) { return []any{v}, nil }

// bindings is the complete, versioned API surface.
var bindings = []binding{
	// renderer
	{namespace: "renderer", name: "clear", params: []param{optColor("color")},
		call: withRenderer(func(r Renderer, a args) ([]any, error) {
			r.Clear(a.color(0, Color{A: 1}))
			return nil, nil
		})},
	{namespace: "renderer", name: "draw_sprite", params: []param{str("name"), num("x"), num("y"), optNum("rotation"), optNum("scale")},
		call: withRenderer(func(r Renderer, a args) ([]any, error) {
			return nil, r.DrawSprite(a.str(0), a.number(1, 0), a.number(2, 0), a.number(3, 0), a.number(4, 1))
		})},
	{namespace: "renderer", name: "draw_text", params: []param{str("text"), num("x"), num("y"), optNum("size"), optColor("color")},
		call: withRenderer(func(r Renderer, a args) ([]any, error) {
			return nil, r.DrawText(a.str(0), a.number(1, 0), a.number(2, 0), a.number(3, 16), a.color(4, White))
		})},
	{namespace: "renderer", name: "draw_rect", params: []param{num("x"), num("y"), num("width"), num("height"), optColor("color")},
		call: withRenderer(func(r Renderer, a args) ([]any, error) {
			return nil, r.DrawRect(a.number(0, 0), a.number(1, 0), a.number(2, 0), a.number(3, 0), a.color(4, White))
		})},
	{namespace: "renderer", name: "draw_line", params: []param{num("x1"), num("y1"), num("x2"), num("y2"), optNum("thickness"), optColor("color")},
		call: withRenderer(func(r Renderer, a args) ([]any, error) {
			return nil, r.DrawLine(a.number(0, 0), a.number(1, 0), a.number(2, 0), a.number(3, 0), a.number(4, 1), a.color(5, White))
		})},
	{namespace: "renderer", name: "draw_circle", params: []param{num("x"), num("y"), num("radius"), optColor("color")},
		call: withRenderer(func(r Renderer, a args) ([]any, error) {
			return nil, r.DrawCircle(a.number(0, 0), a.number(1, 0), a.number(2, 0), a.color(3, White))
		})},
	{namespace: "renderer", name: "set_camera", params: []param{num("x"), num("y"), optNum("zoom")},
		call: withRenderer(func(r Renderer, a args) ([]any, error) {
			r.SetCamera(a.number(0, 0), a.number(1, 0), a.number(2, 1))
			return nil, nil
		})},

	// input
	{namespace: "input", name: "is_key_pressed", params: []param{str("key")},
		call: withInput(func(in Input, a args) ([]any, error) { return boolResult(in.IsKeyPressed(a.str(0))) })},
	{namespace: "input", name: "is_key_just_pressed", params: []param{str("key")},
		call: withInput(func(in Input, a args) ([]any, error) { return boolResult(in.IsKeyJustPressed(a.str(0))) })},
	{namespace: "input", name: "is_key_just_released", params: []param{str("key")},
		call: withInput(func(in Input, a args) ([]any, error) { return boolResult(in.IsKeyJustReleased(a.str(0))) })},
	{namespace: "input", name: "is_mouse_pressed", params: []param{str("button")},
		call: withInput(func(in Input, a args) ([]any, error) { return boolResult(in.IsMousePressed(a.str(0))) })},
	{namespace: "input", name: "mouse_position", params: nil,
		call: withInput(func(in Input, _ args) ([]any, error) { return []any{in.MousePosition()}, nil })},
	{namespace: "input", name: "is_action_pressed", params: []param{str("action")},
		call: withInput(func(in Input, a args) ([]any, error) { return boolResult(in.IsActionPressed(a.str(0))) })},
	{namespace: "input", name: "movement", params: nil,
		call: withInput(func(in Input, _ args) ([]any, error) { return []any{in.Movement()}, nil })},

	// audio
	{namespace: "audio", name: "play_sound", params: []param{str("name"), optBool("loop")},
		call: withAudio(func(au Audio, a args) ([]any, error) {
			id, err := au.PlaySound(a.str(0), a.boolean(1, false))
			if err != nil {
				return nil, err
			}
			return []any{id}, nil
		})},
	{namespace: "audio", name: "play_music", params: []param{str("name"), optBool("loop")},
		call: withAudio(func(au Audio, a args) ([]any, error) {
			return nil, au.PlayMusic(a.str(0), a.boolean(1, true))
		})},
	{namespace: "audio", name: "stop_sound", params: []param{str("id")},
		call: withAudio(func(au Audio, a args) ([]any, error) {
			au.StopSound(a.str(0))
			return nil, nil
		})},
	{namespace: "audio", name: "stop_music", params: nil,
		call: withAudio(func(au Audio, _ args) ([]any, error) {
			au.StopMusic()
			return nil, nil
		})},
	{namespace: "audio", name: "set_volume", params: []param{str("channel"), num("volume")},
		call: withAudio(func(au Audio, a args) ([]any, error) {
			volume := a.number(1, 1)
			if volume < 0 || volume > 1 {
				return nil, fmt.Errorf("volume %.2f outside [0, 1]", volume)
			}
			return nil, au.SetVolume(a.str(0), volume)
		})},

	// saves
	{namespace: "saves", name: "read", params: []param{str("key"), {name: "default", kind: kindValue, optional: true}},
		call: withSaves(func(_ context.Context, s Saves, a args) ([]any, error) {
			return []any{s.Read(a.str(0), a[1])}, nil
		})},
	{namespace: "saves", name: "write", params: []param{str("key"), {name: "value", kind: kindValue, optional: true}},
		call: withSaves(func(_ context.Context, s Saves, a args) ([]any, error) {
			if err := s.Write(a.str(0), a[1]); err != nil {
				return nil, err
			}
			return []any{true}, nil
		})},
	{namespace: "saves", name: "remove", params: []param{str("key")},
		call: withSaves(func(_ context.Context, s Saves, a args) ([]any, error) {
			return boolResult(s.Remove(a.str(0)))
		})},
	{namespace: "saves", name: "flush", params: nil,
		call: withSaves(func(ctx context.Context, s Saves, _ args) ([]any, error) {
			if err := s.Flush(ctx); err != nil {
				return nil, err
			}
			return []any{true}, nil
		})},
}

// Functions lists the qualified names of every API function.
func Functions() []string {
	names := make([]string, 0, len(bindings))
	for _, b := range bindings {
		names = append(names, b.qualifiedName())
	}
	return names
}

// parseArgs validates the call's arguments against params.
func parseArgs(l *lua.State, params []param) (args, error) {
	top := l.Top()
	if top > len(params) {
		return nil, fmt.Errorf("expected at most %d arguments, got %d", len(params), top)
	}
	out := make(args, len(params))
	for i, p := range params {
		index := i + 1
		if l.IsNoneOrNil(index) {
			if p.optional {
				continue
			}
			return nil, argError(l, index, p)
		}
		switch p.kind {
		case kindNumber:
			if l.TypeOf(index) != lua.TypeNumber {
				return nil, argError(l, index, p)
			}
			out[i], _ = l.ToNumber(index)
		case kindString:
			if l.TypeOf(index) != lua.TypeString {
				return nil, argError(l, index, p)
			}
			out[i], _ = l.ToString(index)
		case kindBool:
			if l.TypeOf(index) != lua.TypeBoolean {
				return nil, argError(l, index, p)
			}
			out[i] = l.ToBoolean(index)
		case kindColor:
			c, err := toColor(l, index)
			if err != nil {
				return nil, fmt.Errorf("argument %d (%s): %w", index, p.name, err)
			}
			out[i] = c
		case kindValue:
			v, err := toValue(l, index, 0)
			if err != nil {
				return nil, fmt.Errorf("argument %d (%s): %w", index, p.name, err)
			}
			out[i] = v
		}
	}
	return out, nil
}

func argError(l *lua.State, index int, p param) error {
	got := "no value"
	if !l.IsNone(index) {
		got = lua.TypeNameOf(l, index)
	}
	return fmt.Errorf("argument %d (%s): expected %s, got %s", index, p.name, p.kind, got)
}

// toColor accepts {r=, g=, b=[, a=]} or {r, g, b[, a]} with components in
// [0, 1]. Alpha defaults to 1.
func toColor(l *lua.State, index int) (Color, error) {
	if l.TypeOf(index) != lua.TypeTable {
		return Color{}, fmt.Errorf("expected color table, got %s", lua.TypeNameOf(l, index))
	}
	index = l.AbsIndex(index)
	keys := [4]string{"r", "g", "b", "a"}
	var components [4]float64
	for i, key := range keys {
		l.PushString(key)
		l.RawGet(index)
		if l.IsNil(-1) {
			l.Pop(1)
			l.RawGetInt(index, i+1)
		}
		switch {
		case l.IsNil(-1) && i == 3:
			components[i] = 1
		case l.TypeOf(-1) == lua.TypeNumber:
			components[i], _ = l.ToNumber(-1)
		default:
			l.Pop(1)
			return Color{}, fmt.Errorf("color component %s must be a number", key)
		}
		l.Pop(1)
		if components[i] < 0 || components[i] > 1 {
			return Color{}, fmt.Errorf("color component %s %.2f outside [0, 1]", key, components[i])
		}
	}
	return Color{R: components[0], G: components[1], B: components[2], A: components[3]}, nil
}
