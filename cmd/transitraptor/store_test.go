package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenStoreRejectsEmptyDSN(t *testing.T) {
	_, _, err := openStore(context.Background(), "")
	require.Error(t, err)
}

func TestOpenStoreOpensSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.db")
	store, closer, err := openStore(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer closer.Close()
}
