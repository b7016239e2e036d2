package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replaysim/engine"
)

func TestMergeOrdersByReceiveThenExchange(t *testing.T) {
	books := []engine.BookSnapshot{
		{ExchangeTS: 5, ReceiveTS: 20},
		{ExchangeTS: 1, ReceiveTS: 10},
	}
	trades := []engine.AnonTrade{
		{ExchangeTS: 3, ReceiveTS: 20, Side: engine.Buy, Price: 1},
		{ExchangeTS: 1, ReceiveTS: 10, Side: engine.Sell, Price: 2},
	}

	md := Merge(books, trades)
	require.Len(t, md, 3)

	assert.Equal(t, [2]int64{1, 10}, [2]int64{md[0].ExchangeTS, md[0].ReceiveTS})
	assert.NotNil(t, md[0].Book)
	require.NotNil(t, md[0].Trade)
	assert.Equal(t, 2.0, md[0].Trade.Price)

	assert.Equal(t, [2]int64{3, 20}, [2]int64{md[1].ExchangeTS, md[1].ReceiveTS})
	assert.Nil(t, md[1].Book)
	assert.NotNil(t, md[1].Trade)

	assert.Equal(t, [2]int64{5, 20}, [2]int64{md[2].ExchangeTS, md[2].ReceiveTS})
	assert.NotNil(t, md[2].Book)
	assert.Nil(t, md[2].Trade)
}

func TestMergeLastDuplicateWins(t *testing.T) {
	trades := []engine.AnonTrade{
		{ExchangeTS: 1, ReceiveTS: 1, Price: 1},
		{ExchangeTS: 1, ReceiveTS: 1, Price: 2},
	}
	md := Merge(nil, trades)
	require.Len(t, md, 1)
	assert.Equal(t, 2.0, md[0].Trade.Price)
}

func TestMergeEmpty(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
}
