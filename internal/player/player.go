// Package player hands selected stations to whatever actually produces
// sound. The tuner only issues play and stop commands.
package player

import (
	"log"
	"sync"

	"github.com/shaunagostinho/globe-radio/internal/catalog"
)

// Player is the audio backend the tuner drives. Only the tuner goroutine
// calls Play and Stop; Close runs once at shutdown.
type Player interface {
	Name() string
	Play(city string, st catalog.Station) error
	Stop() error
	Close() error
}

// LogPlayer only logs commands. Used in demo mode and when no backend is
// configured.
type LogPlayer struct {
	mu      sync.Mutex
	playing *catalog.Station
}

func NewLogPlayer() *LogPlayer { return &LogPlayer{} }

func (p *LogPlayer) Name() string { return "log" }

func (p *LogPlayer) Play(city string, st catalog.Station) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = &st
	log.Printf("[player] play %s: %s <%s>", city, st.Name, st.URL)
	return nil
}

func (p *LogPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing != nil {
		log.Printf("[player] stop %s", p.playing.Name)
	}
	p.playing = nil
	return nil
}

func (p *LogPlayer) Close() error { return p.Stop() }

// Current returns the station being played, if any.
func (p *LogPlayer) Current() (catalog.Station, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing == nil {
		return catalog.Station{}, false
	}
	return *p.playing, true
}
