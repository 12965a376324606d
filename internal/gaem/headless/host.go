package headless

import "github.com/louisbranch/gaem/internal/gaem/script"

// Host bundles one headless renderer, input, and audio.
type Host struct {
	Renderer *Renderer
	Input    *Input
	Audio    *Audio
}

// NewHost returns a host whose renderer and audio check names against assets.
func NewHost(assets Assets) *Host {
	return &Host{
		Renderer: NewRenderer(assets),
		Input:    NewInput(),
		Audio:    NewAudio(assets),
	}
}

// Capabilities lends the host's devices and saves to a script call.
func (h *Host) Capabilities(saves script.Saves) script.Capabilities {
	return script.Capabilities{
		Renderer: h.Renderer,
		Input:    h.Input,
		Audio:    h.Audio,
		Saves:    saves,
	}
}
