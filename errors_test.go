package episodb

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/episodb/internal/attrs"
	"github.com/hupe1980/episodb/internal/ingest"
	"github.com/hupe1980/episodb/internal/storage"
	"github.com/hupe1980/episodb/internal/view"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{storage.ErrNotFound, ErrNotFound},
		{storage.ErrAlreadyExists, ErrAlreadyExists},
		{storage.ErrCorrupt, ErrCorruptFormat},
		{fmt.Errorf("load: %w", attrs.ErrCorrupt), ErrCorruptFormat},
		{storage.ErrInvalidIndex, ErrInvalidIndex},
		{storage.ErrInvalidEpisode, ErrSchemaMismatch},
		{storage.ErrClosed, ErrClosed},
		{storage.ErrReadOnly, ErrReadOnly},
		{view.ErrOutOfRange, ErrIndexOutOfRange},
		{view.ErrSampleSize, ErrSamplingError},
	}
	for _, tt := range tests {
		got := translateError(tt.in)
		assert.ErrorIs(t, got, tt.want, "%v", tt.in)
		assert.ErrorIs(t, got, tt.in, "original error must stay reachable")
	}

	assert.NoError(t, translateError(nil))
	assert.Equal(t, io.EOF, translateError(io.EOF))
}

func TestTranslateError_SchemaMismatch(t *testing.T) {
	err := translateError(&ingest.MismatchError{Episode: 3, Field: "rewards", Reason: "too short"})

	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.ErrorIs(t, err, ingest.ErrSchemaMismatch)

	var sme *SchemaMismatchError
	assert.True(t, errors.As(err, &sme))
	assert.Equal(t, 3, sme.Episode)
	assert.Equal(t, "rewards", sme.Field)
	assert.Contains(t, sme.Error(), "buffer 3")
}
