package headless

import (
	"math"
	"strings"
	"sync"

	"github.com/louisbranch/gaem/internal/gaem/script"
)

// Mouse buttons are addressed as "mouse:<button>" in action mappings.
const mousePrefix = "mouse:"

// DefaultMappings binds the standard actions to keys and mouse buttons.
var DefaultMappings = map[string][]string{
	"move_up":    {"w", "up"},
	"move_down":  {"s", "down"},
	"move_left":  {"a", "left"},
	"move_right": {"d", "right"},
	"jump":       {"space"},
	"action":     {"enter", "e", "mouse:left"},
	"cancel":     {"escape", "mouse:right"},
}

// Input is host-fed input state. Press and Release change state immediately;
// EndFrame clears the just-pressed and just-released sets.
type Input struct {
	mu           sync.Mutex
	pressed      map[string]bool
	justPressed  map[string]bool
	justReleased map[string]bool
	mouse        script.Vec2
	mappings     map[string][]string
}

var _ script.Input = (*Input)(nil)

// NewInput returns an input with DefaultMappings.
func NewInput() *Input {
	in := &Input{
		pressed:      make(map[string]bool),
		justPressed:  make(map[string]bool),
		justReleased: make(map[string]bool),
		mappings:     make(map[string][]string, len(DefaultMappings)),
	}
	for action, buttons := range DefaultMappings {
		in.Map(action, buttons...)
	}
	return in
}

// Map replaces the buttons bound to action.
func (in *Input) Map(action string, buttons ...string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	normalized := make([]string, len(buttons))
	for i, b := range buttons {
		normalized[i] = normalize(b)
	}
	in.mappings[action] = normalized
}

// Press marks a key, or a mouse button given as "mouse:<button>", as held.
func (in *Input) Press(button string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	button = normalize(button)
	if !in.pressed[button] {
		in.justPressed[button] = true
	}
	in.pressed[button] = true
}

// Release marks a key or mouse button as up.
func (in *Input) Release(button string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	button = normalize(button)
	if in.pressed[button] {
		in.justReleased[button] = true
	}
	delete(in.pressed, button)
}

// MoveMouse sets the cursor position.
func (in *Input) MoveMouse(x, y float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.mouse = script.Vec2{X: x, Y: y}
}

// EndFrame clears per-frame edges.
func (in *Input) EndFrame() {
	in.mu.Lock()
	defer in.mu.Unlock()
	clear(in.justPressed)
	clear(in.justReleased)
}

func (in *Input) IsKeyPressed(key string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.pressed[normalize(key)]
}

func (in *Input) IsKeyJustPressed(key string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.justPressed[normalize(key)]
}

func (in *Input) IsKeyJustReleased(key string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.justReleased[normalize(key)]
}

func (in *Input) IsMousePressed(button string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.pressed[mousePrefix+normalize(button)]
}

func (in *Input) MousePosition() script.Vec2 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mouse
}

// IsActionPressed reports whether any button bound to action is held.
func (in *Input) IsActionPressed(action string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.actionPressed(action)
}

// Movement combines the move actions into a vector of at most unit length.
// Up is positive y.
func (in *Input) Movement() script.Vec2 {
	in.mu.Lock()
	defer in.mu.Unlock()
	var v script.Vec2
	if in.actionPressed("move_up") {
		v.Y++
	}
	if in.actionPressed("move_down") {
		v.Y--
	}
	if in.actionPressed("move_left") {
		v.X--
	}
	if in.actionPressed("move_right") {
		v.X++
	}
	if length := math.Hypot(v.X, v.Y); length > 1 {
		v.X /= length
		v.Y /= length
	}
	return v
}

func (in *Input) actionPressed(action string) bool {
	for _, b := range in.mappings[action] {
		if in.pressed[b] {
			return true
		}
	}
	return false
}

func normalize(button string) string {
	return strings.ToLower(strings.TrimSpace(button))
}
