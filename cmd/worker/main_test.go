package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

func TestWaitForSignalReturnsFailure(t *testing.T) {
	_, err := logger.Init("info", "json")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	errCh <- errors.New("licensing: stream closed")
	require.EqualError(t, waitForSignal(errCh), "licensing: stream closed")
}
