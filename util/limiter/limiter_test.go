// Copyright 2023 The Cuber Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_ConcurrencyCap(t *testing.T) {
	l := NewLimiter(LimitConfig{ReadConcurrency: 1, WriteConcurrency: 1})

	require.NoError(t, l.AcquireRead())
	assert.Error(t, l.AcquireRead())

	l.SetReadConcurrency(2)
	require.NoError(t, l.AcquireRead())
	l.ReleaseRead()
	l.ReleaseRead()
	assert.Equal(t, 0, l.Status().ReadRunning)

	require.NoError(t, l.AcquireWrite())
	assert.Error(t, l.AcquireWrite())
	l.ReleaseWrite()
	assert.Equal(t, 0, l.Status().WriteRunning)
}

func TestLimiter_UnconfiguredIsUnlimited(t *testing.T) {
	l := NewLimiter(LimitConfig{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.AcquireRead())
		require.NoError(t, l.AcquireWrite())
	}
	require.NoError(t, l.WaitRead(context.Background()))
	require.NoError(t, l.WaitWrite(context.Background()))
}

func TestLimiter_WaitHonorsCancellation(t *testing.T) {
	l := NewLimiter(LimitConfig{WriteOPS: 1})

	// burn the burst so the next wait actually blocks
	require.NoError(t, l.WaitWrite(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.WaitWrite(ctx))
}

func TestCountLimit_Running(t *testing.T) {
	cl := NewCountLimit(2)
	require.NoError(t, cl.Acquire())
	require.NoError(t, cl.Acquire())
	assert.Equal(t, 2, cl.Running())
	assert.Error(t, cl.Acquire())

	cl.Release()
	assert.Equal(t, 1, cl.Running())
	require.NoError(t, cl.Acquire())
}
