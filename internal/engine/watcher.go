package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/darkpattern-remover/internal/dom"
)

// Watch subscribes to insertions and scans each added subtree until ctx
// ends or the document is torn down. It is the standalone form of the
// watch phase of Run.
func (e *Engine) Watch(ctx context.Context) error {
	batches, err := e.doc.Observe(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Error setting up mutation watcher")
		return err
	}
	e.consume(ctx, batches)
	return nil
}

func (e *Engine) consume(ctx context.Context, batches <-chan dom.Batch) {
	for {
		select {
		case <-ctx.Done():
			e.drain(batches)
			return
		case batch, ok := <-batches:
			if !ok {
				return
			}
			e.handleBatch(batch)
		}
	}
}

// drain handles batches that were already queued when the watch ended.
func (e *Engine) drain(batches <-chan dom.Batch) {
	for {
		select {
		case batch, ok := <-batches:
			if !ok {
				return
			}
			e.handleBatch(batch)
		default:
			return
		}
	}
}

// HandleBatch scans every element of one insertion batch. It is the
// entry point for callers that collect insertions themselves instead of
// going through Watch, and is safe to call only from the goroutine that
// owns the engine.
func (e *Engine) HandleBatch(batch dom.Batch) {
	e.handleBatch(batch)
}

func (e *Engine) handleBatch(batch dom.Batch) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Interface("error", r).Msg("Error processing mutation batch")
		}
	}()

	e.report.Batches++
	for _, el := range batch.Added {
		if el == nil {
			continue
		}
		e.ProcessElement(el)
	}
}
