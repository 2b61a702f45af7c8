package engine

import "github.com/enclavevm/enclave/errors"

// valueStack is the interpreter's operand stack. A limit of 0 means
// unbounded; otherwise pushes past the limit fail with a stack overflow.
type valueStack struct {
	items []Value
	limit int
}

func newValueStack(limit int) *valueStack {
	return &valueStack{items: make([]Value, 0, 64), limit: limit}
}

func (s *valueStack) push(v Value) error {
	if s.limit > 0 && len(s.items) >= s.limit {
		return errors.New(errors.PhaseExecute, errors.KindStackOverflow).
			Detail("value stack exceeds depth limit of %d", s.limit).
			Build()
	}
	s.items = append(s.items, v)
	return nil
}

func (s *valueStack) pop() (Value, error) {
	if len(s.items) == 0 {
		return Value{}, errors.New(errors.PhaseExecute, errors.KindStackUnderflow).
			Detail("pop on empty value stack").
			Build()
	}
	v := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return v, nil
}

// pop2 pops the right then the left operand of a binary operation.
func (s *valueStack) pop2() (left, right Value, err error) {
	if right, err = s.pop(); err != nil {
		return
	}
	left, err = s.pop()
	return
}

func (s *valueStack) size() int {
	return len(s.items)
}

// drain removes and returns all remaining values in stack order
// (bottom first).
func (s *valueStack) drain() []Value {
	out := s.items
	s.items = nil
	return out
}
