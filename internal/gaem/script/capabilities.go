package script

import "context"

// Color is an RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float64
}

// White is the default draw color.
var White = Color{R: 1, G: 1, B: 1, A: 1}

// Vec2 is a 2D vector in screen or world units.
type Vec2 struct {
	X, Y float64
}

// Renderer draws one frame. Calls are only valid inside a render callback's
// borrow window, but the host does not enforce phase per namespace.
type Renderer interface {
	Clear(color Color)
	DrawSprite(name string, x, y, rotation, scale float64) error
	DrawText(text string, x, y, size float64, color Color) error
	DrawRect(x, y, width, height float64, color Color) error
	DrawLine(x1, y1, x2, y2, thickness float64, color Color) error
	DrawCircle(x, y, radius float64, color Color) error
	SetCamera(x, y, zoom float64)
}

// Input answers polling queries for the current frame.
type Input interface {
	IsKeyPressed(key string) bool
	IsKeyJustPressed(key string) bool
	IsKeyJustReleased(key string) bool
	IsMousePressed(button string) bool
	MousePosition() Vec2
	IsActionPressed(action string) bool
	Movement() Vec2
}

// Audio plays sounds and music by asset name.
type Audio interface {
	PlaySound(name string, loop bool) (string, error)
	PlayMusic(name string, loop bool) error
	StopSound(id string)
	StopMusic()
	SetVolume(channel string, volume float64) error
}

// Saves is the game's persistent key-value slot.
type Saves interface {
	Read(key string, fallback any) any
	Write(key string, value any) error
	Remove(key string) bool
	Flush(ctx context.Context) error
}

// Capabilities are the host objects lent to the script for one lifecycle
// call. Any of them may be nil; calls into a nil capability fail the
// individual API call.
type Capabilities struct {
	Renderer Renderer
	Input    Input
	Audio    Audio
	Saves    Saves
}
