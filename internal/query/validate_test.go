package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
)

func TestValidateSearchRejectsWrongDimension(t *testing.T) {
	err := ValidateSearch(model.SearchRequest{Vector: model.Vector{1, 2}, TopK: 1, TimeoutMS: 100}, 3)
	assert.Equal(t, akierr.KindInvalidInput, akierr.KindOf(err))
}

func TestValidateSearchRejectsOutOfRangeTopK(t *testing.T) {
	err := ValidateSearch(model.SearchRequest{Vector: model.Vector{1, 2}, TopK: 0, TimeoutMS: 100}, 2)
	assert.Equal(t, akierr.KindInvalidInput, akierr.KindOf(err))

	err = ValidateSearch(model.SearchRequest{Vector: model.Vector{1, 2}, TopK: model.MaxTopK + 1, TimeoutMS: 100}, 2)
	assert.Equal(t, akierr.KindInvalidInput, akierr.KindOf(err))
}

func TestValidateSearchRejectsZeroTimeout(t *testing.T) {
	err := ValidateSearch(model.SearchRequest{Vector: model.Vector{1, 2}, TopK: 1, TimeoutMS: 0}, 2)
	assert.Equal(t, akierr.KindInvalidInput, akierr.KindOf(err))
}

func TestValidateSearchAcceptsWellFormedRequest(t *testing.T) {
	err := ValidateSearch(model.SearchRequest{Vector: model.Vector{1, 2}, TopK: 5, TimeoutMS: 50}, 2)
	assert.NoError(t, err)
}

func TestValidateListRejectsOutOfRangeLimit(t *testing.T) {
	err := ValidateList(model.ListRequest{Offset: 0, Limit: 0})
	assert.Equal(t, akierr.KindInvalidInput, akierr.KindOf(err))

	err = ValidateList(model.ListRequest{Offset: 0, Limit: model.MaxListLimit + 1})
	assert.Equal(t, akierr.KindInvalidInput, akierr.KindOf(err))
}

func TestValidateListRejectsNegativeOffset(t *testing.T) {
	err := ValidateList(model.ListRequest{Offset: -1, Limit: 10})
	assert.Equal(t, akierr.KindInvalidInput, akierr.KindOf(err))
}
