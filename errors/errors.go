package errors

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// Generic root errors.
var (
	// ErrUnauthorized is used whenever a request without sufficient
	// authorization is handled.
	ErrUnauthorized = Register(2, "unauthorized")

	// ErrNotFound is used when a requested operation cannot be completed
	// due to missing data.
	ErrNotFound = Register(3, "not found")

	// ErrInput stands for general input problems indication.
	ErrInput = Register(4, "invalid input")

	// ErrModel is returned whenever a model is invalid and cannot be used
	// (ie. persisted).
	ErrModel = Register(5, "invalid model")

	// ErrDuplicate is returned when there is a record already that has the
	// same unique key/index used.
	ErrDuplicate = Register(6, "duplicate")

	// ErrHuman is returned when application reaches a code path which
	// should not ever be reached if the code was written as expected.
	ErrHuman = Register(7, "coding error")

	// ErrCannotBeModified is returned when something that is considered
	// immutable gets modified.
	ErrCannotBeModified = Register(8, "cannot be modified")

	// ErrEmpty is returned when a value fails a not empty assertion.
	ErrEmpty = Register(9, "value is empty")

	// ErrState is returned when an object is in invalid state.
	ErrState = Register(10, "invalid state")

	// ErrType is returned whenever the type is not what was expected.
	ErrType = Register(11, "invalid type")

	// ErrIteratorDone is returned by iterators when there are no more
	// elements.
	ErrIteratorDone = Register(12, "iterator done")

	// ErrDatabase is returned when a storage backend fails for reasons
	// unrelated to the data itself.
	ErrDatabase = Register(13, "database")

	// ErrPanic is only set when we recover from a panic, so we know to
	// redact potentially sensitive system info.
	ErrPanic = Register(111222, "panic")
)

// Multisig coordination root errors. Codes 100-199 are reserved for them.
var (
	// ErrMalformedPayload is returned when calldata does not match any
	// known vault method or its arguments are not correctly encoded.
	ErrMalformedPayload = Register(100, "malformed payload")

	// ErrInvalidParams is returned when a method cannot be encoded
	// because of invalid arguments.
	ErrInvalidParams = Register(101, "invalid params")

	// ErrInvalidSignatureFormat is returned when a signature does not have
	// the expected length or recovery id.
	ErrInvalidSignatureFormat = Register(102, "invalid signature format")

	// ErrInvalidSignature is returned when a signature does not recover
	// to the address it is claimed to belong to.
	ErrInvalidSignature = Register(103, "invalid signature")

	// ErrDuplicateSigner is returned when two signatures recover to the
	// same address.
	ErrDuplicateSigner = Register(104, "duplicate signer")

	// ErrEmptySignatureSet is returned when no signatures are provided
	// where at least one is required.
	ErrEmptySignatureSet = Register(105, "empty signature set")

	// ErrNotAnOwner is returned when an address is not a member of the
	// current vault owner set.
	ErrNotAnOwner = Register(106, "not an owner")

	// ErrAlreadyConfirmed is returned when a signer confirms a
	// transaction for the second time.
	ErrAlreadyConfirmed = Register(107, "already confirmed")

	// ErrNotConfirmed is returned when a signer revokes a confirmation
	// that does not exist.
	ErrNotConfirmed = Register(108, "not confirmed")

	// ErrNotPending is returned when a transition requires a pending
	// transaction but the transaction was already executed.
	ErrNotPending = Register(109, "transaction not pending")

	// ErrConflict is returned when a conditional write is rejected because
	// the stored entity changed since it was read.
	ErrConflict = Register(110, "concurrent modification")

	// ErrImmutableCalldata is returned when calldata of a transaction
	// with at least one confirmation is about to change.
	ErrImmutableCalldata = Register(111, "immutable calldata violation")

	// ErrExecutionFailed is returned when the vault rejected (reverted) an
	// execution.
	ErrExecutionFailed = Register(112, "execution failed")

	// ErrAlreadyExecuted is returned when the vault reports that the
	// transaction was executed already, usually by a concurrent owner.
	ErrAlreadyExecuted = Register(113, "already executed")

	// ErrHashMismatch is returned when the transaction hash computed
	// locally differs from the one the vault derives.
	ErrHashMismatch = Register(114, "transaction hash mismatch")

	// ErrQuorum is returned when an execution is requested before enough
	// current owners confirmed.
	ErrQuorum = Register(115, "quorum not met")
)

// Register returns an error instance that should be used as the base for
// creating error instances during runtime.
//
// Popular root errors are declared in this package, but extensions may want to
// declare custom codes. This function ensures that no error code is used
// twice. Attempt to reuse an error code results in panic.
//
// Use this function only during a program startup phase.
func Register(code uint32, description string) *Error {
	if e, ok := usedCodes[code]; ok {
		panic(fmt.Sprintf("error with code %d is already registered: %q", code, e.desc))
	}
	err := &Error{
		code: code,
		desc: description,
	}
	usedCodes[err.code] = err
	return err
}

// usedCodes is keeping track of used codes to ensure their uniqueness. No two
// error instances should share the same error code.
var usedCodes = map[uint32]*Error{
	1: {code: 1, desc: "internal"}, // Error code 1 is restricted for errors without a code.
}

// Error represents a root error.
//
// Each instance created during the runtime should wrap one of the declared
// root errors. This allows error tests and returning all errors to the client
// in a safe manner.
type Error struct {
	code uint32
	desc string
}

func (e Error) Error() string {
	return e.desc
}

// Code returns the numeric code unique for this root error.
func (e Error) Code() uint32 {
	return e.code
}

// New returns a new error. Returned instance is having the root cause set to
// this error. Below two lines are equal
//   e.New("my description")
//   Wrap(e, "my description")
func (e *Error) New(description string) error {
	return Wrap(e, description)
}

// Newf is basically New with formatting capabilities.
func (e *Error) Newf(description string, args ...interface{}) error {
	return e.New(fmt.Sprintf(description, args...))
}

// Is check if given error instance is of a given kind/type. This involves
// unwrapping given error using the Cause method if available.
func (kind *Error) Is(err error) bool {
	// Reflect usage is necessary to correctly compare with
	// a nil implementation of an error.
	if kind == nil {
		if err == nil {
			return true
		}
		return reflect.ValueOf(err).IsNil()
	}

	for {
		if err == kind {
			return true
		}

		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return false
		}
	}
}

// Code returns the code of the root error that given error wraps. Errors that
// do not wrap any registered root error have code 1.
func Code(err error) uint32 {
	for {
		if e, ok := err.(*Error); ok {
			return e.code
		}
		c, ok := err.(causer)
		if !ok {
			return 1
		}
		err = c.Cause()
	}
}

// IsRetryable returns true if given error signals a state conflict that can be
// resolved by reading the current state again and repeating the operation.
func IsRetryable(err error) bool {
	return ErrConflict.Is(err)
}

// Wrap extends given error with an additional information.
//
// If err is nil, this returns nil, avoiding the need for an if statement when
// wrapping a error returned at the end of a function
func Wrap(err error, description string) error {
	if err == nil {
		return nil
	}

	// If this error does not carry the stacktrace information yet, attach
	// one. This should be done only once per error at the lowest frame
	// possible (most inner wrap).
	if stackTrace(err) == nil {
		err = errors.WithStack(err)
	}

	return &wrappedError{
		parent: err,
		msg:    description,
	}
}

// Wrapf extends given error with an additional information.
//
// This function works like Wrap function with additional funtionality of
// formatting the input as specified.
func Wrapf(err error, format string, args ...interface{}) error {
	desc := fmt.Sprintf(format, args...)
	return Wrap(err, desc)
}

type wrappedError struct {
	// This error layer description.
	msg string
	// The underlying error that triggered this one.
	parent error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.msg, e.parent.Error())
}

func (e *wrappedError) Cause() error {
	return e.parent
}

// Unwrap allows the standard library errors package to inspect the chain.
func (e *wrappedError) Unwrap() error {
	return e.parent
}

// Recover captures a panic and stop its propagation. If panic happens it is
// transformed into a ErrPanic instance and assigned to given error. Call this
// function using defer in order to work as expected.
func Recover(err *error) {
	if r := recover(); r != nil {
		*err = Wrapf(ErrPanic, "%v", r)
	}
}

// WithType is a helper to augment an error with a corresponding type message
func WithType(err error, obj interface{}) error {
	return Wrap(err, fmt.Sprintf("%T", obj))
}

// causer is an interface implemented by an error that supports wrapping. Use
// it to test if an error wraps another error instance.
type causer interface {
	Cause() error
}

func isNilErr(err error) bool {
	// Reflect usage is necessary to correctly compare with
	// a nil implementation of an error.
	if err == nil {
		return true
	}
	if reflect.ValueOf(err).Kind() == reflect.Struct {
		return false
	}
	return reflect.ValueOf(err).IsNil()
}
