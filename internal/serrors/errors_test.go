package serrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoreError_Error(t *testing.T) {
	t.Run("code only", func(t *testing.T) {
		err := New(ErrFileExists, "")
		assert.Equal(t, "FileExists", err.Error())
	})

	t.Run("code and reason", func(t *testing.T) {
		err := New(ErrSharingMismatch, "requested access not permitted")
		assert.Equal(t, "Sharing, mismatch: requested access not permitted", err.Error())
	})

	t.Run("code reason and path", func(t *testing.T) {
		err := NewWithPath(ErrFileExists, "open exists", `\\srv\share\f.txt`)
		assert.Contains(t, err.Error(), "f.txt")
	})
}

func TestCoreError_Is(t *testing.T) {
	a := New(ErrLockConflict, "first")
	b := New(ErrLockConflict, "second")
	c := New(ErrNotLocked, "third")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestCode(t *testing.T) {
	code, ok := Code(New(ErrOplockBreakTimeout, ""))
	assert.True(t, ok)
	assert.Equal(t, ErrOplockBreakTimeout, code)

	_, ok = Code(errors.New("plain"))
	assert.False(t, ok)
}

func TestErrorCode_StringUnknown(t *testing.T) {
	assert.Contains(t, ErrorCode(999).String(), "Unknown")
}
