package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategory(t *testing.T) {
	assert.Equal(t, CategoryStorage, New(ErrCodeStorageWrite, "x").Category)
	assert.Equal(t, CategorySearch, New(ErrCodeSearchMatch, "x").Category)
	assert.Equal(t, CategoryInput, New(ErrCodeUnknownIndex, "x").Category)
	assert.Equal(t, CategorySoft, New(ErrCodeFacetFailed, "x").Category)
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrCodeStorageWrite, "insert failed", cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ERR_102_STORAGE_WRITE")
	assert.Contains(t, err.Error(), "disk full")
}

func TestWrap_NilCauseIsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeStorageWrite, "nothing", nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrCodeUnknownIndex, "no such index"))

	assert.ErrorIs(t, err, ErrIndexNotFound)
	assert.NotErrorIs(t, err, ErrDocumentNotFound)
}

func TestCodeOf(t *testing.T) {
	code, ok := CodeOf(fmt.Errorf("wrapped: %w", ErrClosed))
	assert.True(t, ok)
	assert.Equal(t, ErrCodeStorageConnect, code)

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsCategory(t *testing.T) {
	assert.True(t, IsCategory(ErrIndexNotFound, CategoryInput))
	assert.False(t, IsCategory(ErrIndexNotFound, CategoryStorage))
	assert.False(t, IsCategory(errors.New("plain"), CategoryStorage))
}
