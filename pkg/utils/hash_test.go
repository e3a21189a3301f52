package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestETag(t *testing.T) {
	a := ETag([]byte(`{"name":"rack-1"}`))
	require.Len(t, a, 34)
	require.Equal(t, a, ETag([]byte(`{"name":"rack-1"}`)))
	require.NotEqual(t, a, ETag([]byte(`{"name":"rack-2"}`)))
}
