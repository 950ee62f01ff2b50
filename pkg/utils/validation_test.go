package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string  `validate:"required,max=5"`
	Rate float64 `validate:"min=0,max=10"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(sample{Name: "a", Rate: 3}))

	err := ValidateStruct(sample{Rate: 11})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "rate must be at most 10")
}

func TestUniqueNonEmpty(t *testing.T) {
	got := UniqueNonEmpty([]string{" b ", "", "a", "b", "\t", "a\r"})
	assert.Equal(t, []string{"b", "a"}, got)
}
