package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "hello-world"},
		{"ALL UPPER CASE", "all-upper-case"},
		{"Cyberpunk 2077", "cyberpunk-2077"},
		{"Pokémon Scarlet", "pokemon-scarlet"},
		{"Çocuk Ürünleri", "cocuk-urunleri"},
		{"Şeker Bayramı", "seker-bayrami"},
		{"  Hello   World!  ", "hello-world"},
		{"The Witcher 3: Wild Hunt", "the-witcher-3-wild-hunt"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Generate(tt.input))
		})
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "pokemon", Fold("pokémon"))
	assert.Equal(t, "strasse", Fold("straße"))
	assert.Equal(t, "plain", Fold("plain"))
}
