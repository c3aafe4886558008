package validation_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapflag/mapflag-client/internal/domain"
	domainerrors "github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/validation"
)

func validDraft() domain.TagDraft {
	return domain.TagDraft{
		CategoryID: 2,
		Position:   domain.Position{Latitude: 24.79, Longitude: 120.99},
		Content:    "broken streetlight",
	}
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()
	assert.NoError(t, v.Validate(validDraft()))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		mutate    func(*domain.TagDraft)
		wantField string
		wantMsg   string
	}{
		{"missing content", func(d *domain.TagDraft) { d.Content = "" }, "content", "is required"},
		{"content too long", func(d *domain.TagDraft) { d.Content = strings.Repeat("a", 501) }, "content", "must not exceed 500 characters"},
		{"missing category", func(d *domain.TagDraft) { d.CategoryID = 0 }, "category_id", "is required"},
		{"unknown category", func(d *domain.TagDraft) { d.CategoryID = 9 }, "category_id", "must be a known category"},
		{"blank content", func(d *domain.TagDraft) { d.Content = "  \n\t " }, "content", "must not be blank"},
		{"latitude out of range", func(d *domain.TagDraft) { d.Position.Latitude = 91 }, "latitude", "must be between -90 and 90"},
		{"longitude out of range", func(d *domain.TagDraft) { d.Position.Longitude = -181 }, "longitude", "must be between -180 and 180"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := validDraft()
			tt.mutate(&draft)

			err := v.Validate(draft)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())
			assert.Contains(t, domainErr.Message, tt.wantField)

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, details[tt.wantField])
		})
	}
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	draft := validDraft()
	draft.CategoryID = 0

	err := v.Validate(draft)
	require.Error(t, err)

	assert.Contains(t, err.Error(), "category_id")
	assert.NotContains(t, err.Error(), "CategoryID")
}

func TestValidator_MessageListsFieldsInOrder(t *testing.T) {
	v := validation.New()

	err := v.Validate(domain.TagDraft{})
	require.Error(t, err)

	assert.Equal(t, "validation failed: category_id is required; content is required", err.Error())
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestValidator_BoundaryCoordinates(t *testing.T) {
	v := validation.New()

	for _, pos := range []domain.Position{{Latitude: 90, Longitude: 180}, {Latitude: -90, Longitude: -180}, {}} {
		draft := validDraft()
		draft.Position = pos
		assert.NoError(t, v.Validate(draft), "%+v", pos)
	}
}
