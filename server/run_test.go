package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"replaysim/engine"
)

func TestRunDropsLaggingFollower(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rn := newRun("r1", zap.New(core))

	history, sub := rn.follow(1)
	assert.Empty(t, history)

	batch := []engine.Notification{book(0, 99, 101), book(1, 99, 101)}
	require.NoError(t, rn.Write(context.Background(), 1, batch))

	rec, ok := <-sub.ch
	require.True(t, ok)
	assert.Equal(t, int64(0), rec.ExchangeTS)
	_, ok = <-sub.ch
	assert.False(t, ok)
	assert.True(t, sub.lagged)
	assert.Equal(t, 1, logs.FilterMessage("stream_follower_lagged").Len())

	// A new follower gets everything from history.
	history, _ = rn.follow(1)
	assert.Len(t, history, 2)
}
