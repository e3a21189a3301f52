package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

func TestProtoRoundTrip(t *testing.T) {
	a := models.NewAsset()
	a.Iname = "epdu-12"
	a.Type = "device"
	a.Subtype = "epdu"
	a.Status = models.StatusActive
	a.Priority = 2
	a.Parent = "rack-3"
	a.SetExt(ExtName, "ePDU 12", false)
	a.SetExt(ExtUUID, "6c3c9e38-2a3e-5e0f-9a0b-0a2b2f0b8c11", true)
	a.SetExt("ip.1", "10.0.0.12", false)
	a.Linked = []models.Link{{Source: "ups-1", LinkType: models.LinkTypePowerChain, SrcOut: "2", DestIn: "A"}}
	a.Groups = []string{"group-1", "group-7"}

	raw, err := ftyproto.Encode(ToProto(a, ftyproto.OpUpdate))
	require.NoError(t, err)
	m, err := ftyproto.Decode(raw)
	require.NoError(t, err)

	got, err := FromProto(m, false)
	require.NoError(t, err)
	require.Equal(t, a.Iname, got.Iname)
	require.Equal(t, a.Type, got.Type)
	require.Equal(t, a.Subtype, got.Subtype)
	require.Equal(t, a.Status, got.Status)
	require.Equal(t, a.Priority, got.Priority)
	require.Equal(t, a.Parent, got.Parent)
	require.Equal(t, a.Ext, got.Ext)
	require.Equal(t, a.Linked, got.Linked)
	require.Equal(t, a.Groups, got.Groups)
}

func TestFromProto(t *testing.T) {
	t.Run("read only flag for every attribute", func(t *testing.T) {
		m := ftyproto.NewAsset("x", ftyproto.OpCreate, map[string]string{AuxType: "rack"}, map[string]string{"a": "1", "b": "2"})
		a, err := FromProto(m, true)
		require.NoError(t, err)
		require.True(t, a.Ext["a"].ReadOnly)
		require.True(t, a.Ext["b"].ReadOnly)
	})

	t.Run("group list", func(t *testing.T) {
		m := ftyproto.NewAsset("x", ftyproto.OpCreate, map[string]string{AuxType: "rack"}, map[string]string{"group": "g1/g2", "group.3": "g3"})
		a, err := FromProto(m, false)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"g1", "g2", "g3"}, a.Groups)
	})

	t.Run("parent id fallback", func(t *testing.T) {
		m := ftyproto.NewAsset("x", ftyproto.OpCreate, map[string]string{AuxType: "rack", AuxParent: "4"}, nil)
		a, err := FromProto(m, false)
		require.NoError(t, err)
		require.Equal(t, "4", a.Parent)
	})

	tests := []struct {
		name string
		aux  map[string]string
	}{
		{"unknown type", map[string]string{AuxType: "spaceship"}},
		{"unknown subtype", map[string]string{AuxType: "device", AuxSubtype: "toaster"}},
		{"bad status", map[string]string{AuxStatus: "retired"}},
		{"bad priority", map[string]string{AuxPriority: "P9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromProto(ftyproto.NewAsset("x", ftyproto.OpCreate, tt.aux, nil), false)
			require.True(t, appErr.IsCode(err, appErr.CodeBadParams))
		})
	}

	_, err := FromProto(ftyproto.NewMetric("x", "t", "1", "", 0, 0), false)
	require.True(t, appErr.IsCode(err, appErr.CodeBadRequestDocument))
}

func TestEventFromAsset(t *testing.T) {
	dc := models.NewAsset()
	dc.Iname = "datacenter-3"
	dc.Type = "datacenter"
	dc.Status = models.StatusActive
	dc.SetExt(ExtName, "DC", false)
	dc.SetExt(ExtCreateTS, "2024-01-01T00:00:00+0000", true)

	m := EventFromAsset(dc, &models.SuperParent{}, []string{"ups-1", "ups-9"}, ftyproto.OpUpdate)
	require.Equal(t, "ups-1", m.Aux["ups0"])
	require.Equal(t, "ups-9", m.Aux["ups1"])
	require.Equal(t, "0", m.Aux[AuxParent])
	require.Equal(t, ExtCreateTS, m.Aux[AuxExtReadOnly])
	require.Equal(t, "DC", m.Ext[ExtName])

	rackID, roomID := uint32(7), uint32(2)
	rackName, roomName := "rack-7", "room-2"
	rackType, roomType := models.TypeRack, models.TypeRoom
	dev := models.NewAsset()
	dev.Iname = "srv-1"
	dev.Type = "device"
	dev.Subtype = "server"
	dev.ParentID = rackID
	sp := &models.SuperParent{
		IDParent1: &rackID, NameParent1: &rackName, TypeParent1: &rackType,
		IDParent2: &roomID, NameParent2: &roomName, TypeParent2: &roomType,
	}
	m = EventFromAsset(dev, sp, []string{"ignored"}, ftyproto.OpCreate)
	require.Equal(t, "rack-7", m.Aux["parent_name.1"])
	require.Equal(t, "room-2", m.Aux["parent_name.2"])
	require.Equal(t, "7", m.Aux[AuxParent])
	require.NotContains(t, m.Aux, "ups0")
}
