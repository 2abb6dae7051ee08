// Package ml owns the vision-language model: loading, input tensor
// construction and the streaming generation loop. Tensors wrap native ONNX
// Runtime memory and must be explicitly destroyed; InputSet makes that a
// single Release call the request handler can defer.
package ml

import (
	"errors"
)

// Tensor is a model-ready value backed by native memory. ort.Value satisfies
// it; tests substitute counting mocks.
type Tensor interface {
	Destroy() error
}

// InputSet holds every tensor constructed for one generation session. The
// owning request handler must call Release on every exit path; Release is
// idempotent so a deferred call is always safe.
type InputSet struct {
	names    []string
	values   []Tensor
	ids      []int64
	released bool
}

// NewInputSet wraps already-constructed tensors. names and values are
// parallel; ids is the tokenized prompt.
func NewInputSet(names []string, values []Tensor, ids []int64) *InputSet {
	return &InputSet{names: names, values: values, ids: ids}
}

// TokenIDs returns the tokenized prompt the set was built from.
func (s *InputSet) TokenIDs() []int64 {
	return s.ids
}

// Release destroys every tensor in the set exactly once. Individual
// destroy failures are aggregated, not short-circuited: each tensor gets
// its Destroy call regardless of earlier failures.
func (s *InputSet) Release() error {
	if s.released {
		return nil
	}
	s.released = true

	var agg error
	for _, t := range s.values {
		if t != nil {
			agg = errors.Join(agg, t.Destroy())
		}
	}
	s.values = nil
	return agg
}

// value returns the tensor built for the named model input, or nil.
func (s *InputSet) value(name string) Tensor {
	for i, n := range s.names {
		if n == name {
			return s.values[i]
		}
	}
	return nil
}
