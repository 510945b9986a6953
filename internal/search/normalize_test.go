package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Kadıköy", "kadikoy"},
		{"İSTANBUL", "istanbul"},
		{"  Çankaya   Ankara ", "cankaya ankara"},
		{"Şişli", "sisli"},
		{"Müstakil Ev", "mustakil ev"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.in), "Fold(%q)", tt.in)
	}
}

func TestMatchAll(t *testing.T) {
	terms := Terms("deniz manzaralı daire")
	assert.True(t, MatchAll(terms, "Deniz Manzaralı 3+1 Daire", "Kadıköy"))
	assert.False(t, MatchAll(terms, "Deniz manzaralı villa"))
	assert.True(t, MatchAll(nil, "anything"))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("Üsküdar", "uskudar"))
	assert.False(t, Equal("Beşiktaş", "Bakırköy"))
}
