package ftyproto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssetRoundTrip(t *testing.T) {
	in := NewAsset("ups-12", OpUpdate,
		map[string]string{"type": "device", "subtype": "ups", "priority": "1", "parent": "7", "status": "active"},
		map[string]string{"name": "UPS 12", "serial_no": "ABC", "empty": ""},
	)

	raw, err := Encode(in)
	require.NoError(t, err)
	require.True(t, IsFtyProto(raw))
	require.Equal(t, []byte{0xAA, 0xA9, byte(AssetID)}, raw[:3])

	out, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, AssetID, out.ID)
	require.Equal(t, in.Name, out.Name)
	require.Equal(t, in.Operation, out.Operation)
	require.Equal(t, in.Aux, out.Aux)
	require.Equal(t, in.Ext, out.Ext)
	require.Equal(t, "UPS 12", out.ExtString("name", ""))
	require.Equal(t, "x", out.AuxString("missing", "x"))
}

func TestMetricRoundTrip(t *testing.T) {
	in := NewMetric("rackcontroller-0", "configurability.global", "0", "", 300, 1700000000)
	in.Aux = map[string]string{"source": "licensing"}

	raw, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, in, out)
	require.Equal(t, "configurability.global@rackcontroller-0", out.MetricSubject())
}

func TestEncodingIsDeterministic(t *testing.T) {
	aux := map[string]string{}
	for _, k := range []string{"z", "a", "m", "b"} {
		aux[k] = k
	}
	a, err := Encode(NewAsset("x", OpUpdate, aux, nil))
	require.NoError(t, err)
	b, err := Encode(NewAsset("x", OpUpdate, aux, nil))
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("REQUEST"))
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = Decode([]byte{0xAA})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte{0xAA, 0xA9, 9})
	require.ErrorIs(t, err, ErrUnsupported)

	raw, err := Encode(NewAsset("dc-1", OpCreate, map[string]string{"type": "datacenter"}, nil))
	require.NoError(t, err)
	_, err = Decode(raw[:len(raw)-3])
	require.ErrorIs(t, err, ErrMalformed)

	require.False(t, IsFtyProto([]byte("READWRITE")))
}

func TestLongKeysAreRejected(t *testing.T) {
	_, err := Encode(NewAsset(strings.Repeat("n", 256), OpCreate, nil, nil))
	require.Error(t, err)

	_, err = Encode(NewAsset("x", OpCreate, nil, map[string]string{strings.Repeat("k", 300): "v"}))
	require.Error(t, err)
}
