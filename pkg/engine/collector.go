package engine

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const chunkPoolSize = 64

// chunkPool keeps zeroed chunks of released trees for reuse.
type chunkPool struct {
	free chan *chunk
}

func newChunkPool(size int) *chunkPool {
	return &chunkPool{free: make(chan *chunk, size)}
}

func (p *chunkPool) get() *chunk {
	select {
	case c := <-p.free:
		return c
	default:
		return new(chunk)
	}
}

func (p *chunkPool) put(c *chunk) {
	select {
	case p.free <- c:
	default:
	}
}

// collector releases detached search trees off the controller goroutine.
type collector struct {
	garbage *queue[*tree]
	pool    *chunkPool
	trees   atomic.Int64
	nodes   atomic.Int64
	logger  zerolog.Logger
}

func newCollector(pool *chunkPool, logger zerolog.Logger) *collector {
	return &collector{
		garbage: newQueue[*tree](),
		pool:    pool,
		logger:  logger,
	}
}

func (c *collector) Enqueue(t *tree) {
	c.garbage.Push(t)
}

func (c *collector) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.releaseAll()
			return nil
		case <-c.garbage.Wake():
			c.releaseAll()
		}
	}
}

func (c *collector) releaseAll() {
	for _, t := range c.garbage.Drain() {
		c.release(t)
	}
}

func (c *collector) release(t *tree) {
	var size = t.detach()
	var chunks = 0
	for i := range t.chunks {
		var ch = t.chunks[i].Swap(nil)
		if ch == nil {
			continue
		}
		clear(ch[:])
		c.pool.put(ch)
		chunks++
	}
	c.trees.Add(1)
	c.nodes.Add(int64(size))
	c.logger.Debug().
		Int("nodes", size).
		Int("chunks", chunks).
		Msg("tree released")
}
