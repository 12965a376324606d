package headless

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/louisbranch/gaem/internal/gaem/manifest"
	"github.com/louisbranch/gaem/internal/gaem/script"
)

// Volume channels.
const (
	ChannelMaster = "master"
	ChannelSound  = "sound"
	ChannelMusic  = "music"
)

// Sound is one playing sound effect.
type Sound struct {
	ID   string
	Name string
	Loop bool
}

// Audio tracks playing sounds, the current music track, and volumes.
type Audio struct {
	mu      sync.Mutex
	assets  Assets
	sounds  map[string]Sound
	music   string
	loop    bool
	volumes map[string]float64
}

var _ script.Audio = (*Audio)(nil)

// NewAudio returns an audio system at full volume. A nil assets accepts any
// clip name.
func NewAudio(assets Assets) *Audio {
	return &Audio{
		assets:  assets,
		sounds:  make(map[string]Sound),
		volumes: map[string]float64{ChannelMaster: 1, ChannelSound: 1, ChannelMusic: 1},
	}
}

// PlaySound starts a clip and returns an id for StopSound.
func (a *Audio) PlaySound(name string, loop bool) (string, error) {
	if err := a.check(name); err != nil {
		return "", err
	}
	id := uuid.NewString()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sounds[id] = Sound{ID: id, Name: name, Loop: loop}
	return id, nil
}

// PlayMusic replaces the current music track.
func (a *Audio) PlayMusic(name string, loop bool) error {
	if err := a.check(name); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.music, a.loop = name, loop
	return nil
}

// StopSound stops one sound. Unknown ids are ignored.
func (a *Audio) StopSound(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sounds, id)
}

func (a *Audio) StopMusic() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.music, a.loop = "", false
}

// StopAll stops every sound and the music.
func (a *Audio) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.sounds)
	a.music, a.loop = "", false
}

// SetVolume sets a channel volume in [0, 1].
func (a *Audio) SetVolume(channel string, volume float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.volumes[channel]; !ok {
		return fmt.Errorf("unknown volume channel %q", channel)
	}
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume must be within [0, 1], got %g", volume)
	}
	a.volumes[channel] = volume
	return nil
}

// Volume returns a channel volume, or 0 for an unknown channel.
func (a *Audio) Volume(channel string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volumes[channel]
}

// EffectiveVolume is the master volume scaled by the channel volume.
func (a *Audio) EffectiveVolume(channel string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volumes[ChannelMaster] * a.volumes[channel]
}

// Sounds lists playing sounds ordered by id.
func (a *Audio) Sounds() []Sound {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Sound, 0, len(a.sounds))
	for _, s := range a.sounds {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Music returns the current track and whether anything is playing.
func (a *Audio) Music() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.music, a.music != ""
}

func (a *Audio) check(name string) error {
	if a.assets != nil && !a.assets.Has(manifest.AssetAudio, name) {
		return fmt.Errorf("audio clip %q not loaded", name)
	}
	return nil
}
