package assemble

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/introspect"
	"github.com/apiforge/forge/model/method"
)

// MethodResult is the payload of a method-derived mutation: the method's
// own return value alongside the refreshed instance state.
type MethodResult struct {
	Result   any          `json:"result"`
	Instance forge.Record `json:"instance"`
}

// CallMethod executes an eligible model method as a mutation. The owning
// instance is resolved by primary key before the call; missing required
// parameters and unknown parameter names are validation failures. A
// validation-class error from the method yields a single error entry; any
// other error is surfaced as a generic entry, fatal for this call only.
func (as *Assembler) CallMethod(ctx context.Context, model, methodName string, actor any, id any, args map[string]any) forge.Envelope {
	d, ok := as.synth.Descriptor(model)
	if !ok {
		return forge.FailEnvelope(nil, forge.GlobalError(fmt.Sprintf("unknown model %s", model)))
	}
	var md *introspect.MethodDescriptor
	for _, m := range d.EligibleMethods() {
		if m.Name == methodName {
			md = m
			break
		}
	}
	if md == nil {
		return forge.FailEnvelope(nil, forge.GlobalError(fmt.Sprintf("unknown mutation %s on %s", methodName, model)))
	}

	known := lo.SliceToMap(md.Params, func(p method.Param) (string, bool) { return p.Name, true })
	callArgs := make(map[string]any, len(md.Params))
	var errs []error
	for name := range args {
		if !known[name] {
			errs = append(errs, forge.NewValidationError(name, fmt.Errorf("unknown parameter")))
		}
	}
	for _, p := range md.Params {
		value, present := args[p.Name]
		switch {
		case present:
			callArgs[p.Name] = value
		case p.HasDefault:
			callArgs[p.Name] = p.Default
		default:
			errs = append(errs, forge.NewValidationError(p.Name, fmt.Errorf("required parameter is missing")))
		}
	}
	if len(errs) > 0 {
		return forge.FailEnvelope(nil, validationEntries(errs)...)
	}

	if !as.auth.MayPerform(ctx, actor, forge.OpMethodMutation, model, id) {
		return as.denied(forge.OpMethodMutation, model)
	}
	instance, err := as.Get(ctx, model, id)
	if err != nil {
		return forge.FailEnvelope(nil, forge.ErrorEntry(err))
	}

	result, err := md.Func()(ctx, instance, callArgs)
	if err != nil {
		if forge.IsValidationError(err) {
			return forge.FailEnvelope(nil, forge.ErrorEntry(err))
		}
		as.log.Error().Err(err).Str("model", model).Str("method", methodName).Msg("method mutation failed")
		return forge.FailEnvelope(nil, forge.GlobalError("internal error"))
	}

	refreshed, err := as.Get(ctx, model, id)
	if err != nil {
		// The method may legitimately have deleted its own instance.
		refreshed = nil
	}
	return forge.OkEnvelope(MethodResult{Result: result, Instance: refreshed})
}
