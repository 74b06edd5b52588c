package engine

import (
	"sync"

	"github.com/germanamz/playfield/pkg/state"
)

// Game represents one game in progress. It owns the player variable stores
// and tracks whose turn it is.
type Game struct {
	id string

	mu      sync.RWMutex
	players []*state.Store
	current int
}

// newGame creates a game with the given ID and no players.
func newGame(id string) *Game {
	return &Game{id: id}
}

// ID returns the game identifier.
func (g *Game) ID() string { return g.id }

// Players returns the number of players.
func (g *Game) Players() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.players)
}

// Player returns the variables of the player whose turn it is.
func (g *Game) Player() *state.Store {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.players) == 0 {
		return nil
	}
	return g.players[g.current]
}

// PlayerNumber returns the 1-based number of the current player.
func (g *Game) PlayerNumber() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.current + 1
}

// add appends a player and returns its 1-based number.
func (g *Game) add(p *state.Store) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.players = append(g.players, p)
	return len(g.players)
}

// rotate moves the turn to the next player and returns its 1-based number.
func (g *Game) rotate() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.players) > 0 {
		g.current = (g.current + 1) % len(g.players)
	}
	return g.current + 1
}
