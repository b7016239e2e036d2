package main

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsSeededAndOrdered(t *testing.T) {
	a := generate(rand.New(rand.NewSource(3)), 200, 100, 0.5, 2, 10, 4)
	b := generate(rand.New(rand.NewSource(3)), 200, 100, 0.5, 2, 10, 4)
	require.Len(t, a, 200)
	assert.Equal(t, a, b)

	var books, prints int
	for i, m := range a {
		assert.Equal(t, int64(i)*10, m.ExchangeTS)
		if m.Book != nil {
			books++
			assert.Less(t, m.Book.Bids[0].Price, m.Book.Asks[0].Price)
		}
		if m.Trade != nil {
			prints++
		}
	}
	assert.Positive(t, books)
	assert.Positive(t, prints)
}
