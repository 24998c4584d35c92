package evalctx

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"backtestsim/internal/model"
)

// InputRefEval reads the value bound to an Input.
type InputRefEval struct {
	In model.Input
}

// Ref builds an InputRefEval for in.
func Ref(in model.Input) InputRefEval {
	return InputRefEval{In: in}
}

func (e InputRefEval) Key() model.EvalKey {
	id := model.IDOf(e.In)
	return model.EvalKey("input:" + id.String())
}

// DerivedEval is a deterministic function of other evals' values. Name
// must be unique among derived evals with the same Deps — it is part of
// the eval's structural identity.
type DerivedEval struct {
	Name string
	Deps []model.Eval
	Fn   func(values []any) (any, error)
}

// Derive builds a DerivedEval.
func Derive(name string, deps []model.Eval, fn func(values []any) (any, error)) DerivedEval {
	return DerivedEval{Name: name, Deps: deps, Fn: fn}
}

func (e DerivedEval) Key() model.EvalKey {
	h := sha256.New()
	fmt.Fprintf(h, "derived:%s", e.Name)
	for _, d := range e.Deps {
		fmt.Fprintf(h, "|%s", d.Key())
	}
	return model.EvalKey(hex.EncodeToString(h.Sum(nil)))
}

// FoldEval folds an incremental sequence with a reusable accumulator so
// that appends avoid full recomputation (§3, §4.A). Seq must evaluate to
// a value implementing model.Sequence.
type FoldEval struct {
	Name string
	Seq  model.Eval
	Zero func() any
	// Step is applied to the range [from, to) of newly observed items in
	// the sequence; it returns the updated accumulator.
	Step func(acc any, seq model.Sequence, from, to int) any
}

// Fold builds a FoldEval.
func Fold(name string, seq model.Eval, zero func() any, step func(acc any, seq model.Sequence, from, to int) any) FoldEval {
	return FoldEval{Name: name, Seq: seq, Zero: zero, Step: step}
}

func (e FoldEval) Key() model.EvalKey {
	h := sha256.New()
	fmt.Fprintf(h, "fold:%s|%s", e.Name, e.Seq.Key())
	return model.EvalKey(hex.EncodeToString(h.Sum(nil)))
}
