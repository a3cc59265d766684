package validation

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Title string `json:"title" validate:"required,notblank"`
	Shelf string `json:"shelf" validate:"omitempty,shelf"`
}

func TestValidator(t *testing.T) {
	v := New()

	require.NoError(t, v.Validate(sample{Title: "Dune", Shelf: "favorite"}))

	err := v.Validate(sample{Title: "   "})
	var ve validator.ValidationErrors
	require.True(t, errors.As(err, &ve))
	require.Equal(t, "title", ve[0].Field())
	require.Equal(t, "notblank", ve[0].Tag())

	err = v.Validate(sample{Title: "Dune", Shelf: "wishlist"})
	require.True(t, errors.As(err, &ve))
	require.Equal(t, "shelf", ve[0].Field())
}
