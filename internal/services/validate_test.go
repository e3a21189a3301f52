package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

func TestCheckPlacement(t *testing.T) {
	ctx := context.Background()
	repo := newFixture(t).repo
	seed(t, repo, "dc", "datacenter", "", "")
	seed(t, repo, "rack-10u", "rack", "", "dc", ExtUSize, "10")
	seed(t, repo, "rack-nosize", "rack", "", "dc")
	existing := seed(t, repo, "srv-1", "device", "server", "rack-10u", ExtLocation, "1", ExtUSize, "2")

	place := func(parent *models.Asset, loc, size string) *models.Asset {
		a := models.NewAsset()
		a.Type = "device"
		a.ParentID = parent.ID
		if loc != "" {
			a.SetExt(ExtLocation, loc, false)
		}
		if size != "" {
			a.SetExt(ExtUSize, size, false)
		}
		return a
	}
	rack, err := repo.LoadAsset(ctx, "rack-10u")
	require.NoError(t, err)
	bare, err := repo.LoadAsset(ctx, "rack-nosize")
	require.NoError(t, err)

	tests := []struct {
		name    string
		asset   *models.Asset
		wantErr string
	}{
		{"free slot", place(rack, "3", "2"), ""},
		{"last units", place(rack, "9", "2"), ""},
		{"overlap", place(rack, "2", "1"), "Asset place is occupied"},
		{"past the top", place(rack, "10", "2"), "Asset is out bounds"},
		{"zero position", place(rack, "0", "1"), "Position is wrong, should be greater than 0"},
		{"missing size", place(rack, "4", ""), "Size is wrong, should be greater than 0"},
		{"parent without size", place(bare, "1", "1"), "Size is not set"},
		{"no position", place(rack, "", "2"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPlacement(ctx, repo, tt.asset)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Equal(t, tt.wantErr, appErr.Reason(err))
		})
	}

	t.Run("moving in place does not collide with itself", func(t *testing.T) {
		a := existing.Clone()
		a.SetExt(ExtLocation, "2", false)
		require.NoError(t, CheckPlacement(ctx, repo, a))
	})
}

func TestCheckPowerLinks(t *testing.T) {
	ctx := context.Background()
	repo := newFixture(t).repo
	seed(t, repo, "dc1", "datacenter", "", "")
	seed(t, repo, "dc2", "datacenter", "", "")
	seed(t, repo, "feed-1", "device", "feed", "dc1")
	seed(t, repo, "feed-2", "device", "feed", "dc2")
	seed(t, repo, "ups-1", "device", "ups", "dc1")
	seed(t, repo, "pdu-1", "device", "pdu", "dc1")
	link(t, repo, "feed-1", "ups-1")
	link(t, repo, "ups-1", "pdu-1")

	withSources := func(iname, parent string, sources ...string) *models.Asset {
		a, err := repo.LoadAsset(ctx, iname)
		if err != nil {
			a = models.NewAsset()
			a.Type = "device"
			a.Iname = iname
			p, perr := repo.GetByName(ctx, parent)
			require.NoError(t, perr)
			a.ParentID = p.ID
		}
		a.Linked = nil
		for _, s := range sources {
			a.Linked = append(a.Linked, models.Link{Source: s, LinkType: models.LinkTypePowerChain})
		}
		return a
	}

	t.Run("self link", func(t *testing.T) {
		err := CheckPowerLinks(ctx, repo, withSources("pdu-1", "dc1", "pdu-1"), 8)
		require.Equal(t, "connection loop was detected", appErr.Reason(err))
	})

	t.Run("cycle through existing links", func(t *testing.T) {
		err := CheckPowerLinks(ctx, repo, withSources("feed-1", "dc1", "pdu-1"), 8)
		require.Equal(t, "connection loop was detected", appErr.Reason(err))
	})

	t.Run("source in another data center", func(t *testing.T) {
		err := CheckPowerLinks(ctx, repo, withSources("srv-new", "dc1", "feed-2"), 8)
		require.Equal(t, "Power source is not in same DC", appErr.Reason(err))
	})

	t.Run("too many sources", func(t *testing.T) {
		err := CheckPowerLinks(ctx, repo, withSources("srv-new", "dc1", "feed-1", "ups-1", "pdu-1"), 2)
		require.True(t, appErr.IsCode(err, appErr.CodeBadParams))
	})

	t.Run("valid chain", func(t *testing.T) {
		require.NoError(t, CheckPowerLinks(ctx, repo, withSources("srv-new", "dc1", "pdu-1", "ups-1"), 8))
	})

	t.Run("unknown source", func(t *testing.T) {
		err := CheckPowerLinks(ctx, repo, withSources("srv-new", "dc1", "nope"), 8)
		require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
	})
}

func TestCheckParent(t *testing.T) {
	ctx := context.Background()
	repo := newFixture(t).repo
	dc := seed(t, repo, "dc", "datacenter", "", "")
	seed(t, repo, "srv", "device", "server", "dc")

	t.Run("by name", func(t *testing.T) {
		a := models.NewAsset()
		a.Type = "room"
		a.Parent = "dc"
		require.NoError(t, CheckParent(ctx, repo, a))
		require.Equal(t, dc.ID, a.ParentID)
	})

	t.Run("by numeric id", func(t *testing.T) {
		a := models.NewAsset()
		a.Type = "room"
		a.Parent = "1"
		require.NoError(t, CheckParent(ctx, repo, a))
		require.Equal(t, "dc", a.Parent)
	})

	t.Run("device cannot contain", func(t *testing.T) {
		a := models.NewAsset()
		a.Type = "device"
		a.Parent = "srv"
		require.True(t, appErr.IsCode(CheckParent(ctx, repo, a), appErr.CodeBadParams))
	})

	t.Run("datacenter has no parent", func(t *testing.T) {
		a := models.NewAsset()
		a.Type = "datacenter"
		a.Parent = "dc"
		require.Error(t, CheckParent(ctx, repo, a))
	})

	t.Run("unknown parent", func(t *testing.T) {
		a := models.NewAsset()
		a.Type = "rack"
		a.Parent = "missing"
		require.True(t, appErr.IsCode(CheckParent(ctx, repo, a), appErr.CodeBadParams))
	})
}

func TestCheckIdentifier(t *testing.T) {
	ctx := context.Background()
	repo := newFixture(t).repo
	dc := seed(t, repo, "dc", "datacenter", "", "")

	id, err := CheckIdentifier(ctx, repo, "asset", "dc")
	require.NoError(t, err)
	require.Equal(t, dc.ID, id)

	_, err = CheckIdentifier(ctx, repo, "asset", "dc_1")
	require.True(t, appErr.IsCode(err, appErr.CodeBadParams))

	_, err = CheckIdentifier(ctx, repo, "asset", "")
	require.True(t, appErr.IsCode(err, appErr.CodeParamRequired))

	_, err = CheckIdentifier(ctx, repo, "asset", "ghost")
	require.True(t, appErr.IsCode(err, appErr.CodeBadParams))
}

func TestSanitizeDate(t *testing.T) {
	for _, in := range []string{"25-12-2020", "2020-12-25", "25-Dec-20", "25.12.2020", "25 12 2020", "12/25/2020"} {
		t.Run(in, func(t *testing.T) {
			got, err := SanitizeDate(in)
			require.NoError(t, err)
			require.Equal(t, "2020-12-25", got)
		})
	}
	_, err := SanitizeDate("next tuesday")
	require.Equal(t, "Not is ISO date", appErr.Reason(err))
}

func TestNormalizeExt(t *testing.T) {
	a := models.NewAsset()
	a.SetExt("installation_date", "01.02.2021", false)
	a.SetExt("max_power", "3.5", false)
	require.NoError(t, NormalizeExt(a))
	require.Equal(t, "2021-02-01", a.ExtString("installation_date"))

	a.SetExt(ExtUSize, "two", false)
	require.True(t, appErr.IsCode(NormalizeExt(a), appErr.CodeBadParams))
}

func TestCheckDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := newFixture(t).repo
	seed(t, repo, "ups-1", "device", "ups", "", ExtManufacturer, "Eaton", ExtModel, "9PX", ExtSerial, "S1")

	a := models.NewAsset()
	a.Type = "device"
	a.SetExt(ExtManufacturer, "Eaton", false)
	a.SetExt(ExtModel, "9PX", false)
	a.SetExt(ExtSerial, "S1", false)
	err := CheckDuplicate(ctx, repo, a)
	require.True(t, appErr.IsCode(err, appErr.CodeAlreadyExists))

	a.SetExt(ExtSerial, "S2", false)
	require.NoError(t, CheckDuplicate(ctx, repo, a))
}
