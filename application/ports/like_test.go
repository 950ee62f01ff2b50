package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchLike(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"%", "anything", true},
		{"%", "", true},
		{"moon", "Moon", true},
		{"%oo%", "Moon", true},
		{"m_on", "moon", true},
		{"m_on", "mon", false},
		{"%луна%", "Полная Луна", true},
		{ContainsPattern("50%"), "sale 50% off", true},
		{ContainsPattern("50%"), "sale 500 off", false},
		{ContainsPattern("a_b"), "xa_by", true},
		{ContainsPattern("a_b"), "xacby", false},
		{"abc", "abcd", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchLike(tt.pattern, tt.value))
		})
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%\_\\`, EscapeLike(`100%_\`))
}
