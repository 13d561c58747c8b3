// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

//go:build unix

package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockExcludesSecondHolder(t *testing.T) {
	dir := t.TempDir()
	unlock, err := Lock(dir)
	require.NoError(t, err)

	_, err = Lock(dir)
	assert.True(t, errors.Is(err, ErrLocked), "got %v", err)

	unlock()
	unlock2, err := Lock(dir)
	require.NoError(t, err)
	unlock2()
}
