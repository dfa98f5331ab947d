package broker

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/kilianp07/vehicle-broker/core/logger"
	coremon "github.com/kilianp07/vehicle-broker/core/monitoring"
)

type job struct {
	kind string
	run  func(ctx context.Context)
}

// shardedPool runs jobs on a fixed set of goroutines. Jobs with the same key
// always land on the same shard and therefore run in submission order.
type shardedPool struct {
	queues []chan job
	log    logger.Logger

	done     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
}

func newShardedPool(workers, queueSize int, log logger.Logger) *shardedPool {
	p := &shardedPool{
		queues: make([]chan job, workers),
		log:    log,
		done:   make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan job, queueSize)
	}
	return p
}

func (p *shardedPool) start(ctx context.Context) {
	for i, q := range p.queues {
		p.wg.Add(1)
		go p.worker(ctx, i, q)
	}
}

func (p *shardedPool) worker(ctx context.Context, shard int, q <-chan job) {
	defer p.wg.Done()
	for j := range q {
		queueDepth.Dec()
		p.runJob(ctx, shard, j)
	}
}

func (p *shardedPool) runJob(ctx context.Context, shard int, j job) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in %s handler: %v", j.kind, r)
			p.log.Errorw("handler panic", map[string]any{"shard": shard, "kind": j.kind, "err": err})
			coremon.CaptureException(err, map[string]string{"module": "broker", "kind": j.kind})
		}
	}()
	j.run(ctx)
}

func (p *shardedPool) shard(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.queues)))
}

// submit enqueues j on key's shard, waiting while the shard is full. It
// returns false once the pool is stopping.
func (p *shardedPool) submit(key string, j job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	queueDepth.Inc()
	select {
	case p.queues[p.shard(key)] <- j:
		return true
	case <-p.done:
		queueDepth.Dec()
		return false
	}
}

// stop rejects new jobs, lets the workers drain what is queued and waits for
// them to exit.
func (p *shardedPool) stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		p.closed = true
		for _, q := range p.queues {
			close(q)
		}
		p.mu.Unlock()
	})
	p.wg.Wait()
}
