package assemble

import (
	"context"
	"fmt"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/synth"
)

// Create validates input, checks authorization and creates one record
// inside its own transactional unit. Validation and constraint failures
// roll the unit back and are reported through the envelope with per-field
// attribution where derivable.
func (as *Assembler) Create(ctx context.Context, model string, actor any, input forge.Record) forge.Envelope {
	td, err := as.synth.Type(model, synth.ModeCreate)
	if err != nil {
		return forge.FailEnvelope(nil, forge.ErrorEntry(err))
	}
	if errs := validateInput(td, input); len(errs) > 0 {
		return forge.FailEnvelope(nil, validationEntries(errs)...)
	}
	if !as.auth.MayPerform(ctx, actor, forge.OpCreate, model, nil) {
		return as.denied(forge.OpCreate, model)
	}
	record, err := as.inUnit(ctx, func(tx forge.Tx) (forge.Record, error) {
		record, err := tx.Create(ctx, model, input)
		if err != nil {
			return nil, err
		}
		return record, tx.Flush(ctx)
	})
	if err != nil {
		return forge.FailEnvelope(nil, forge.ErrorEntry(err))
	}
	return forge.OkEnvelope(record)
}

// Update validates input, checks authorization against the addressed
// object and updates it inside its own transactional unit. The primary key
// is taken from the input payload.
func (as *Assembler) Update(ctx context.Context, model string, actor any, input forge.Record) forge.Envelope {
	d, ok := as.synth.Descriptor(model)
	if !ok {
		return forge.FailEnvelope(nil, forge.GlobalError(fmt.Sprintf("unknown model %s", model)))
	}
	td, err := as.synth.Type(model, synth.ModeUpdate)
	if err != nil {
		return forge.FailEnvelope(nil, forge.ErrorEntry(err))
	}
	if errs := validateInput(td, input); len(errs) > 0 {
		return forge.FailEnvelope(nil, validationEntries(errs)...)
	}
	pk := d.PrimaryKey().Name
	id := input[pk]
	if !as.auth.MayPerform(ctx, actor, forge.OpUpdate, model, id) {
		return as.denied(forge.OpUpdate, model)
	}
	payload := make(forge.Record, len(input))
	for k, v := range input {
		if k != pk {
			payload[k] = v
		}
	}
	record, err := as.inUnit(ctx, func(tx forge.Tx) (forge.Record, error) {
		record, err := tx.Update(ctx, model, id, payload)
		if err != nil {
			return nil, err
		}
		return record, tx.Flush(ctx)
	})
	if err != nil {
		return forge.FailEnvelope(nil, forge.ErrorEntry(err))
	}
	return forge.OkEnvelope(record)
}

// Delete removes one record by primary key inside its own transactional
// unit. Data carries true on success, mirroring the bulk variant's
// per-object booleans.
func (as *Assembler) Delete(ctx context.Context, model string, actor any, id any) forge.Envelope {
	if _, ok := as.synth.Descriptor(model); !ok {
		return forge.FailEnvelope(nil, forge.GlobalError(fmt.Sprintf("unknown model %s", model)))
	}
	if !as.auth.MayPerform(ctx, actor, forge.OpDelete, model, id) {
		return as.denied(forge.OpDelete, model)
	}
	_, err := as.inUnit(ctx, func(tx forge.Tx) (forge.Record, error) {
		if err := tx.Delete(ctx, model, id); err != nil {
			return nil, err
		}
		return nil, tx.Flush(ctx)
	})
	if err != nil {
		return forge.FailEnvelope(false, forge.ErrorEntry(err))
	}
	return forge.OkEnvelope(true)
}

// inUnit runs fn inside a fresh transactional unit, committing on success
// and rolling back on any error. Rollback failures are logged, not
// surfaced: the original cause is what the caller needs.
func (as *Assembler) inUnit(ctx context.Context, fn func(tx forge.Tx) (forge.Record, error)) (forge.Record, error) {
	tx, err := as.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}
	record, err := fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			as.log.Error().Err(rbErr).Msg("rollback failed")
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			as.log.Error().Err(rbErr).Msg("rollback failed")
		}
		return nil, err
	}
	return record, nil
}

// denied builds the non-attributable permission envelope. The message is
// intentionally generic.
func (as *Assembler) denied(op forge.OpKind, model string) forge.Envelope {
	as.log.Debug().Str("op", string(op)).Str("model", model).Msg("operation denied")
	return forge.FailEnvelope(nil, forge.ErrorEntry(forge.NewPermissionError(op, model)))
}
