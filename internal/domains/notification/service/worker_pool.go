package service

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WorkerPool executes dispatches with per-key ordering. Work for the same
// (recipient, channel) pair always hashes to the same partition, so two
// notifications to one inbox can never race each other while unrelated
// recipients proceed in parallel.
type WorkerPool struct {
	partitions []chan dispatchJob
	dispatch   func(ctx context.Context, id uuid.UUID) error
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	startOnce  sync.Once
	stopOnce   sync.Once
}

type dispatchJob struct {
	id  uuid.UUID
	key string
}

// NewWorkerPool creates a pool with the given partition count and per-
// partition queue depth.
func NewWorkerPool(partitions, depth int, dispatch func(ctx context.Context, id uuid.UUID) error) *WorkerPool {
	if partitions < 1 {
		partitions = 1
	}
	if depth < 1 {
		depth = 64
	}

	pool := &WorkerPool{
		partitions: make([]chan dispatchJob, partitions),
		dispatch:   dispatch,
	}
	for i := range pool.partitions {
		pool.partitions[i] = make(chan dispatchJob, depth)
	}
	return pool
}

// Start launches one goroutine per partition.
func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel

		for i, partition := range p.partitions {
			p.wg.Add(1)
			go p.run(ctx, i, partition)
		}

		log.Info().Int("partitions", len(p.partitions)).Msg("[WorkerPool] Started")
	})
}

// Submit enqueues a dispatch, blocking when the partition is full so
// producers feel backpressure instead of dropping work. Returns ctx.Err()
// if the caller gives up first.
func (p *WorkerPool) Submit(ctx context.Context, id uuid.UUID, key string) error {
	job := dispatchJob{id: id, key: key}
	select {
	case p.partitions[p.partitionFor(key)] <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains in-flight work and shuts the pool down. Queued jobs that have
// not started are abandoned; they remain QUEUED in history and the retry
// sweep picks them up.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		for _, partition := range p.partitions {
			close(partition)
		}
		p.wg.Wait()
		log.Info().Msg("[WorkerPool] Stopped")
	})
}

func (p *WorkerPool) run(ctx context.Context, index int, jobs <-chan dispatchJob) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := p.dispatch(ctx, job.id); err != nil {
				log.Error().Err(err).
					Str("notificationID", job.id.String()).
					Int("partition", index).
					Msg("[WorkerPool] Dispatch failed")
			}
		}
	}
}

func (p *WorkerPool) partitionFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.partitions)))
}
