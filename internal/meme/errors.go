package meme

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can decide how to surface them.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindDelivery    Kind = "delivery"
	KindPersistence Kind = "persistence"
	KindIntegrity   Kind = "integrity"
)

// Error is the typed error used across the scheduling core.
//
// Match a kind with errors.Is(err, meme.ErrValidation) etc.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrDelivery    = &Error{Kind: KindDelivery}
	ErrPersistence = &Error{Kind: KindPersistence}
	ErrIntegrity   = &Error{Kind: KindIntegrity}
)

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" && t.Msg == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Integrity(op, format string, args ...any) error {
	return &Error{Kind: KindIntegrity, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Persistence wraps a store failure. A nil err yields nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) && me.Kind == KindPersistence {
		return err
	}
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

// Delivery wraps a channel client failure. A nil err yields nil.
func Delivery(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindDelivery, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "".
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return ""
}
