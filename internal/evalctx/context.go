// Package evalctx implements the incremental evaluation context (§4.A):
// a memoized dataflow graph where evals are recomputed only when the
// inputs they transitively touch change. The context is a value-like
// structure — UpdateInput and Evaluate both return a new logical
// context rather than mutating the receiver, so a caller that holds an
// older context still sees its original bindings and memo.
package evalctx

import (
	"fmt"

	"backtestsim/internal/model"
)

type memoEntry struct {
	value  any
	deps   map[model.InputID]struct{}
	isFold bool
	// cursor is the number of sequence items already folded, valid only
	// when isFold is true.
	cursor int
}

// Context holds input bindings and the evaluation memo. The zero value
// is not usable; construct with New.
type Context struct {
	inputs  map[model.InputID]any
	memo    map[model.EvalKey]*memoEntry
	reverse map[model.InputID]map[model.EvalKey]struct{}
}

// New returns an empty context with no bound inputs.
func New() *Context {
	return &Context{
		inputs:  map[model.InputID]any{},
		memo:    map[model.EvalKey]*memoEntry{},
		reverse: map[model.InputID]map[model.EvalKey]struct{}{},
	}
}

// UpdateInput binds in to value and returns a new context in which
// exactly the evals whose transitive dependency set contains in are
// invalidated. Fold evals are never evicted outright — they resume from
// their cached tail the next time they are evaluated (§4.A).
func (c *Context) UpdateInput(in model.Input, value any) *Context {
	id := model.IDOf(in)
	newInputs := cloneInputs(c.inputs)
	newInputs[id] = value

	newMemo := cloneMemo(c.memo)
	newReverse := cloneReverse(c.reverse)

	if affected, ok := newReverse[id]; ok {
		for key := range affected {
			entry := newMemo[key]
			if entry == nil || entry.isFold {
				continue
			}
			delete(newMemo, key)
			for depID := range entry.deps {
				if set, ok := newReverse[depID]; ok {
					delete(set, key)
					if len(set) == 0 {
						delete(newReverse, depID)
					}
				}
			}
		}
	}

	return &Context{inputs: newInputs, memo: newMemo, reverse: newReverse}
}

// InputValue returns the value currently bound to in, if any. Unlike
// Evaluate, this never touches the memo — it is the direct lookup the
// environment uses to read back a binding it just wrote (e.g. the
// current TradeHistorySegment before appending a fill), not part of the
// eval DAG contract.
func (c *Context) InputValue(in model.Input) (any, bool) {
	v, ok := c.inputs[model.IDOf(in)]
	return v, ok
}

// Evaluate computes e's value, returning it alongside a new context with
// the discovered dependency set and value memoized. On failure — an
// unbound input or a user eval error — the original context is returned
// unchanged, since context and eval errors are fatal to the simulation
// (§7) and no partial memo state should be trusted.
func (c *Context) Evaluate(e model.Eval) (any, *Context, error) {
	working := &Context{
		inputs:  c.inputs,
		memo:    cloneMemo(c.memo),
		reverse: cloneReverse(c.reverse),
	}

	value, _, err := working.resolve(e)
	if err != nil {
		return nil, c, err
	}
	return value, working, nil
}

func (nc *Context) resolve(e model.Eval) (any, map[model.InputID]struct{}, error) {
	key := e.Key()
	if entry, ok := nc.memo[key]; ok && !entry.isFold {
		return entry.value, entry.deps, nil
	}

	switch ev := e.(type) {
	case InputRefEval:
		id := model.IDOf(ev.In)
		v, bound := nc.inputs[id]
		if !bound {
			return nil, nil, InputNotBound{Input: id.String()}
		}
		deps := map[model.InputID]struct{}{id: {}}
		nc.store(key, v, deps, false, 0)
		return v, deps, nil

	case DerivedEval:
		values := make([]any, len(ev.Deps))
		deps := map[model.InputID]struct{}{}
		for i, d := range ev.Deps {
			v, dd, err := nc.resolve(d)
			if err != nil {
				return nil, nil, err
			}
			values[i] = v
			mergeInto(deps, dd)
		}
		v, err := ev.Fn(values)
		if err != nil {
			return nil, nil, EvalFailure{Name: ev.Name, Err: err}
		}
		nc.store(key, v, deps, false, 0)
		return v, deps, nil

	case FoldEval:
		return nc.resolveFold(key, ev)

	default:
		return nil, nil, fmt.Errorf("evalctx: unsupported eval type %T", e)
	}
}

func (nc *Context) resolveFold(key model.EvalKey, ev FoldEval) (any, map[model.InputID]struct{}, error) {
	seqVal, seqDeps, err := nc.resolve(ev.Seq)
	if err != nil {
		return nil, nil, err
	}
	seq, ok := seqVal.(model.Sequence)
	if !ok {
		return nil, nil, EvalFailure{Name: ev.Name, Err: fmt.Errorf("fold source does not implement model.Sequence (got %T)", seqVal)}
	}

	acc := ev.Zero()
	cursor := 0
	if entry, ok := nc.memo[key]; ok && entry.isFold {
		acc = entry.value
		cursor = entry.cursor
	}

	n := seq.Len()
	switch {
	case n > cursor:
		acc = ev.Step(acc, seq, cursor, n)
		cursor = n
	case n < cursor:
		// The sequence is shorter than what was folded before — it was
		// replaced rather than appended to. Fold from scratch.
		acc = ev.Step(ev.Zero(), seq, 0, n)
		cursor = n
	}

	nc.store(key, acc, seqDeps, true, cursor)
	return acc, seqDeps, nil
}

func (nc *Context) store(key model.EvalKey, value any, deps map[model.InputID]struct{}, isFold bool, cursor int) {
	nc.memo[key] = &memoEntry{value: value, deps: deps, isFold: isFold, cursor: cursor}
	for id := range deps {
		set, ok := nc.reverse[id]
		if !ok {
			set = map[model.EvalKey]struct{}{}
			nc.reverse[id] = set
		}
		set[key] = struct{}{}
	}
}

func mergeInto(dst, src map[model.InputID]struct{}) {
	for k := range src {
		dst[k] = struct{}{}
	}
}

func cloneInputs(m map[model.InputID]any) map[model.InputID]any {
	out := make(map[model.InputID]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneMemo(m map[model.EvalKey]*memoEntry) map[model.EvalKey]*memoEntry {
	out := make(map[model.EvalKey]*memoEntry, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneReverse(m map[model.InputID]map[model.EvalKey]struct{}) map[model.InputID]map[model.EvalKey]struct{} {
	out := make(map[model.InputID]map[model.EvalKey]struct{}, len(m))
	for k, v := range m {
		inner := make(map[model.EvalKey]struct{}, len(v))
		for kk := range v {
			inner[kk] = struct{}{}
		}
		out[k] = inner
	}
	return out
}
