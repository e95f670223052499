package assemble

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/synth"
)

// bulkOp is one bulk mutation prepared for the batch engine. prepare runs
// before any storage work for the item and excludes it on error; apply
// performs the storage call inside the batch's transactional unit and
// returns the result payload together with the processed identifier.
type bulkOp struct {
	kind    forge.OpKind
	model   string
	n       int
	prepare func(i int) []error
	apply   func(ctx context.Context, tx forge.Tx, i int) (payload any, id any, err error)
}

// BulkCreate creates up to maxObjects records in fixed-size batches, each
// inside its own transactional unit. Failed objects hold a null payload at
// their input position; ok is true iff every object succeeded.
func (as *Assembler) BulkCreate(ctx context.Context, model string, actor any, inputs []forge.Record) forge.Envelope {
	d, ok := as.synth.Descriptor(model)
	if !ok {
		return forge.FailEnvelope(nil, forge.GlobalError(fmt.Sprintf("unknown model %s", model)))
	}
	td, err := as.synth.Type(model, synth.ModeCreate)
	if err != nil {
		return forge.FailEnvelope(nil, forge.ErrorEntry(err))
	}
	pk := d.PrimaryKey().Name
	return as.runBulk(ctx, bulkOp{
		kind:  forge.OpBulkCreate,
		model: model,
		n:     len(inputs),
		prepare: func(i int) []error {
			if errs := validateInput(td, inputs[i]); len(errs) > 0 {
				return errs
			}
			if !as.auth.MayPerform(ctx, actor, forge.OpCreate, model, nil) {
				return []error{forge.NewPermissionError(forge.OpCreate, model)}
			}
			return nil
		},
		apply: func(ctx context.Context, tx forge.Tx, i int) (any, any, error) {
			record, err := tx.Create(ctx, model, inputs[i])
			if err != nil {
				return nil, nil, err
			}
			return record, record[pk], nil
		},
	})
}

// BulkUpdate updates up to maxObjects records addressed by the primary key
// carried in each payload.
func (as *Assembler) BulkUpdate(ctx context.Context, model string, actor any, inputs []forge.Record) forge.Envelope {
	d, ok := as.synth.Descriptor(model)
	if !ok {
		return forge.FailEnvelope(nil, forge.GlobalError(fmt.Sprintf("unknown model %s", model)))
	}
	td, err := as.synth.Type(model, synth.ModeUpdate)
	if err != nil {
		return forge.FailEnvelope(nil, forge.ErrorEntry(err))
	}
	pk := d.PrimaryKey().Name
	return as.runBulk(ctx, bulkOp{
		kind:  forge.OpBulkUpdate,
		model: model,
		n:     len(inputs),
		prepare: func(i int) []error {
			if errs := validateInput(td, inputs[i]); len(errs) > 0 {
				return errs
			}
			if !as.auth.MayPerform(ctx, actor, forge.OpUpdate, model, inputs[i][pk]) {
				return []error{forge.NewPermissionError(forge.OpUpdate, model)}
			}
			return nil
		},
		apply: func(ctx context.Context, tx forge.Tx, i int) (any, any, error) {
			id := inputs[i][pk]
			payload := make(forge.Record, len(inputs[i]))
			for k, v := range inputs[i] {
				if k != pk {
					payload[k] = v
				}
			}
			record, err := tx.Update(ctx, model, id, payload)
			if err != nil {
				return nil, nil, err
			}
			return record, id, nil
		},
	})
}

// BulkDelete removes up to maxObjects records by identifier. Successful
// positions hold true; the envelope's object list carries the deleted
// identifiers in input order.
func (as *Assembler) BulkDelete(ctx context.Context, model string, actor any, ids []any) forge.Envelope {
	if _, ok := as.synth.Descriptor(model); !ok {
		return forge.FailEnvelope(nil, forge.GlobalError(fmt.Sprintf("unknown model %s", model)))
	}
	return as.runBulk(ctx, bulkOp{
		kind:  forge.OpBulkDelete,
		model: model,
		n:     len(ids),
		prepare: func(i int) []error {
			if !as.auth.MayPerform(ctx, actor, forge.OpDelete, model, ids[i]) {
				return []error{forge.NewPermissionError(forge.OpDelete, model)}
			}
			return nil
		},
		apply: func(ctx context.Context, tx forge.Tx, i int) (any, any, error) {
			if err := tx.Delete(ctx, model, ids[i]); err != nil {
				return nil, nil, err
			}
			return true, ids[i], nil
		},
	})
}

// runBulk drives a bulk operation through the batch state machine: batches
// execute strictly in input order, each in its own transactional unit. An
// item failing its own call is excluded without disturbing the rest of the
// batch; a flush or commit failure rolls the whole batch back and marks
// every object in it failed with the shared cause.
func (as *Assembler) runBulk(ctx context.Context, op bulkOp) forge.Envelope {
	if op.n > as.maxObjects {
		return forge.FailEnvelope(nil, forge.ErrorEntry(
			fmt.Errorf("%w: %d objects exceed the limit of %d", forge.ErrTooManyObjects, op.n, as.maxObjects)))
	}

	run := uuid.NewString()
	log := as.log.With().Str("run", run).Str("model", op.model).Str("op", string(op.kind)).Logger()
	log.Debug().Int("objects", op.n).Int("batch_size", as.batchSize).Msg("bulk run started")

	results := make([]any, op.n)
	ids := make([]any, op.n)
	failures := make(map[int][]forge.ResultError)

	for start := 0; start < op.n; start += as.batchSize {
		end := start + as.batchSize
		if end > op.n {
			end = op.n
		}
		as.runBatch(ctx, op, start, end, results, ids, failures, log)
	}

	entries := make([]forge.ResultError, 0, len(failures))
	for _, i := range sortedIndices(failures) {
		entries = append(entries, failures[i]...)
	}
	var objects []any
	for i := 0; i < op.n; i++ {
		if _, failed := failures[i]; !failed && ids[i] != nil {
			objects = append(objects, ids[i])
		}
	}
	env := forge.EnvelopeFor(results, entries)
	env.Objects = objects
	log.Debug().Int("failed", len(failures)).Bool("ok", env.OK).Msg("bulk run completed")
	return env
}

// runBatch executes one batch inside one transactional unit.
func (as *Assembler) runBatch(ctx context.Context, op bulkOp, start, end int, results, ids []any, failures map[int][]forge.ResultError, log zerolog.Logger) {
	fail := func(i int, errs ...error) {
		results[i] = nil
		ids[i] = nil
		for _, err := range errs {
			failures[i] = append(failures[i], indexedEntry(i, err))
		}
	}

	tx, err := as.storage.Begin(ctx)
	if err != nil {
		for i := start; i < end; i++ {
			fail(i, err)
		}
		log.Error().Err(err).Int("batch_start", start).Msg("batch unit unavailable")
		return
	}

	var applied []int
	for i := start; i < end; i++ {
		if errs := op.prepare(i); len(errs) > 0 {
			fail(i, errs...)
			continue
		}
		payload, id, err := op.apply(ctx, tx, i)
		if err != nil {
			fail(i, err)
			continue
		}
		results[i] = payload
		ids[i] = id
		applied = append(applied, i)
	}

	err = tx.Flush(ctx)
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Int("batch_start", start).Msg("batch rollback failed")
		}
		// The shared cause lands on every object of the batch, including
		// the ones whose individual calls succeeded.
		for i := start; i < end; i++ {
			if _, alreadyFailed := failures[i]; !alreadyFailed {
				fail(i, err)
			}
		}
		log.Warn().Err(err).Int("batch_start", start).Msg("batch rolled back")
		return
	}
	log.Debug().Int("batch_start", start).Int("succeeded", len(applied)).Msg("batch committed")
}

// indexedEntry renders one failure entry for the object at position i,
// keeping the field attribution inside the message.
func indexedEntry(i int, err error) forge.ResultError {
	entry := forge.ErrorEntry(err)
	if entry.Field != nil {
		return forge.IndexedError(i, fmt.Sprintf("%s: %s", *entry.Field, entry.Message))
	}
	return forge.IndexedError(i, entry.Message)
}

func sortedIndices(failures map[int][]forge.ResultError) []int {
	out := make([]int, 0, len(failures))
	for i := range failures {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
