package errors

import (
	stdlib "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCause(t *testing.T) {
	std := stdlib.New("this is a stdlib error")

	cases := map[string]struct {
		err  error
		root error
	}{
		"Errors are self-causing": {
			err:  ErrNotFound,
			root: ErrNotFound,
		},
		"Wrap reveals root cause": {
			err:  Wrap(ErrNotFound, "foo"),
			root: ErrNotFound,
		},
		"Cause works for stderr as root": {
			err:  Wrap(std, "Some helpful text"),
			root: std,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if got := errors.Cause(tc.err); got != tc.root {
				t.Fatal("unexpected result")
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	cases := map[string]struct {
		a      *Error
		b      error
		wantIs bool
	}{
		"instance of the same error": {
			a:      ErrNotFound,
			b:      ErrNotFound,
			wantIs: true,
		},
		"two different coded errors": {
			a:      ErrNotFound,
			b:      ErrModel,
			wantIs: false,
		},
		"successful comparison to a wrapped error": {
			a:      ErrDuplicateSigner,
			b:      Wrapf(ErrDuplicateSigner, "signer %d", 2),
			wantIs: true,
		},
		"unsuccessful comparison to a wrapped error": {
			a:      ErrNotFound,
			b:      Wrap(ErrConflict, "version"),
			wantIs: false,
		},
		"not equal to stdlib error": {
			a:      ErrNotFound,
			b:      fmt.Errorf("stdlib error"),
			wantIs: false,
		},
		"field error reveals the root cause": {
			a:      ErrInvalidParams,
			b:      Field("Amount", ErrInvalidParams, "negative"),
			wantIs: true,
		},
		"multi error is the first error": {
			a:      ErrEmpty,
			b:      Append(ErrEmpty, ErrModel),
			wantIs: true,
		},
		"nil is nil": {
			a:      nil,
			b:      nil,
			wantIs: true,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if got := tc.a.Is(tc.b); got != tc.wantIs {
				t.Fatalf("unexpected result - got: %v", got)
			}
		})
	}
}

func TestRegisterDuplicateCodePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("panic expected")
		}
	}()
	Register(ErrConflict.Code(), "conflict again")
}

func TestCode(t *testing.T) {
	assert.Equal(t, uint32(110), Code(Wrap(ErrConflict, "stale")))
	assert.Equal(t, uint32(1), Code(fmt.Errorf("plain")))
	assert.Equal(t, uint32(1), Code(Wrap(fmt.Errorf("plain"), "wrapped")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Wrap(ErrConflict, "version 3")))
	assert.False(t, IsRetryable(Wrap(ErrAlreadyConfirmed, "again")))
	assert.False(t, IsRetryable(nil))
}

func TestStdlibUnwrap(t *testing.T) {
	err := Wrap(ErrNotAnOwner, "caller")
	assert.True(t, stdlib.Is(err, ErrNotAnOwner))
}

func TestFieldErrors(t *testing.T) {
	err := Append(
		Field("Name", ErrEmpty, "required"),
		Field("Threshold", ErrInput, "too big"),
		nil,
	)
	assert.Len(t, FieldErrors(err, "Name"), 1)
	assert.Len(t, FieldErrors(err, "Threshold"), 1)
	assert.Len(t, FieldErrors(err, "Owners"), 0)
	assert.Nil(t, Append(nil, nil))
}

func TestStackTrace(t *testing.T) {
	err := Wrap(ErrDuplicate, "name")
	assert.Equal(t, "name: duplicate", err.Error())
	assert.NotNil(t, stackTrace(err))

	full := fmt.Sprintf("%+v", err)
	if !strings.Contains(full, "errors_test.go") {
		t.Logf("Stack trace below\n----%s\n----", full)
		t.Error("full stack trace should contain this test source code information")
	}
	short := fmt.Sprintf("%v", err)
	if !strings.HasPrefix(short, "name: duplicate [") {
		t.Fatalf("unexpected short format: %q", short)
	}
}
