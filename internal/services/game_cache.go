package services

import (
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/HammerMeetNail/chessticulate/internal/models"
)

// GameCache is a capacity-bounded read cache of games. An entry is served only
// when its seq and status match the persisted version, so it never decides a write.
type GameCache struct {
	entries *lru.Cache[uuid.UUID, models.Game]
}

func NewGameCache(size int) (*GameCache, error) {
	entries, err := lru.New[uuid.UUID, models.Game](size)
	if err != nil {
		return nil, fmt.Errorf("create game cache: %w", err)
	}
	return &GameCache{entries: entries}, nil
}

// Lookup returns a copy of the cached game if it is at seq with status.
func (c *GameCache) Lookup(id uuid.UUID, seq int, status models.GameStatus) (*models.Game, bool) {
	if c == nil {
		return nil, false
	}
	g, ok := c.entries.Get(id)
	if !ok {
		return nil, false
	}
	if g.Seq != seq || g.Status != status {
		c.entries.Remove(id)
		return nil, false
	}
	return &g, true
}

func (c *GameCache) Store(g *models.Game) {
	if c == nil || g == nil {
		return
	}
	c.entries.Add(g.ID, *g)
}

func (c *GameCache) Invalidate(id uuid.UUID) {
	if c == nil {
		return
	}
	c.entries.Remove(id)
}

func (c *GameCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
