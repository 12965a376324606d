// Package headless implements the engine capabilities without a window or
// audio device. Renderer calls are recorded, input is fed by the host, and
// audio tracks what would be playing.
package headless

import (
	"fmt"
	"sync"

	"github.com/louisbranch/gaem/internal/gaem/manifest"
	"github.com/louisbranch/gaem/internal/gaem/script"
)

// Assets reports which named assets are loaded.
type Assets interface {
	Has(t manifest.AssetType, name string) bool
}

// Command is one recorded draw call.
type Command struct {
	Op   string
	Args []any
}

// Camera is the renderer's view transform.
type Camera struct {
	X, Y, Zoom float64
}

// Renderer records draw commands for the current frame.
type Renderer struct {
	mu       sync.Mutex
	assets   Assets
	commands []Command
	camera   Camera
}

var _ script.Renderer = (*Renderer)(nil)

// NewRenderer returns a renderer that checks sprite names against assets.
// A nil assets accepts any sprite.
func NewRenderer(assets Assets) *Renderer {
	return &Renderer{assets: assets, camera: Camera{Zoom: 1}}
}

// Clear starts a new frame.
func (r *Renderer) Clear(c script.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands[:0], Command{Op: "clear", Args: []any{c}})
}

func (r *Renderer) DrawSprite(name string, x, y, rotation, scale float64) error {
	if r.assets != nil && !r.assets.Has(manifest.AssetSprite, name) {
		return fmt.Errorf("sprite %q not loaded", name)
	}
	if scale <= 0 {
		return fmt.Errorf("scale must be positive, got %g", scale)
	}
	r.record("draw_sprite", name, x, y, rotation, scale)
	return nil
}

func (r *Renderer) DrawText(text string, x, y, size float64, c script.Color) error {
	if size <= 0 {
		return fmt.Errorf("text size must be positive, got %g", size)
	}
	r.record("draw_text", text, x, y, size, c)
	return nil
}

func (r *Renderer) DrawRect(x, y, w, h float64, c script.Color) error {
	if w < 0 || h < 0 {
		return fmt.Errorf("rect size must not be negative, got %gx%g", w, h)
	}
	r.record("draw_rect", x, y, w, h, c)
	return nil
}

func (r *Renderer) DrawLine(x1, y1, x2, y2, thickness float64, c script.Color) error {
	if thickness <= 0 {
		return fmt.Errorf("line thickness must be positive, got %g", thickness)
	}
	r.record("draw_line", x1, y1, x2, y2, thickness, c)
	return nil
}

func (r *Renderer) DrawCircle(x, y, radius float64, c script.Color) error {
	if radius < 0 {
		return fmt.Errorf("radius must not be negative, got %g", radius)
	}
	r.record("draw_circle", x, y, radius, c)
	return nil
}

// SetCamera moves the view. A non-positive zoom is ignored.
func (r *Renderer) SetCamera(x, y, zoom float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.camera.X, r.camera.Y = x, y
	if zoom > 0 {
		r.camera.Zoom = zoom
	}
}

// Camera returns the current view transform.
func (r *Renderer) Camera() Camera {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.camera
}

// Commands returns the commands recorded since the last Clear.
func (r *Renderer) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

func (r *Renderer) record(op string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, Command{Op: op, Args: args})
}
