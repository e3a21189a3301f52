package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository/repotest"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

// topologyRepo builds:
//
//	dc1 > room-1 > rack-1 > {ups-1, srv-1}
//	dc1 > feed-1
//	dc2 > feed-2
//	feed-2 -> feed-1 -> ups-1 -> srv-1, group-1 = {ups-1, srv-1}
func topologyRepo(t *testing.T) *repotest.Memory {
	t.Helper()
	repo := repotest.NewMemory()
	seed(t, repo, "dc1", "datacenter", "", "", ExtName, "Data Center 1")
	seed(t, repo, "dc2", "datacenter", "", "")
	seed(t, repo, "room-1", "room", "", "dc1")
	seed(t, repo, "rack-1", "rack", "", "room-1")
	seed(t, repo, "feed-1", "device", "feed", "dc1")
	seed(t, repo, "feed-2", "device", "feed", "dc2")
	seed(t, repo, "ups-1", "device", "ups", "rack-1", ExtName, "UPS 1")
	seed(t, repo, "srv-1", "device", "server", "rack-1")
	seed(t, repo, "group-1", "group", "", "")
	link(t, repo, "feed-2", "feed-1")
	link(t, repo, "feed-1", "ups-1")
	link(t, repo, "ups-1", "srv-1")

	ctx := context.Background()
	for _, n := range []string{"ups-1", "srv-1"} {
		a, err := repo.LoadAsset(ctx, n)
		require.NoError(t, err)
		a.Groups = []string{"group-1"}
		require.NoError(t, repo.Save(ctx, a))
	}
	return repo
}

func deviceIDs(g *PowerGraph) []string {
	out := make([]string, 0, len(g.Devices))
	for _, d := range g.Devices {
		out = append(out, d.ID)
	}
	return out
}

func TestPower(t *testing.T) {
	ctx := context.Background()
	topo := NewTopology(topologyRepo(t))

	t.Run("device", func(t *testing.T) {
		got, err := topo.Power(ctx, "srv-1")
		require.NoError(t, err)
		require.Equal(t, []string{"ups-1", "feed-1", "feed-2"}, got)
	})

	t.Run("container excludes its own devices", func(t *testing.T) {
		got, err := topo.Power(ctx, "rack-1")
		require.NoError(t, err)
		require.Equal(t, []string{"feed-1", "feed-2"}, got)
	})

	t.Run("unknown asset", func(t *testing.T) {
		_, err := topo.Power(ctx, "ghost")
		require.Equal(t, "Asset not found", TopologyReason(err))
	})
}

func TestPowerTo(t *testing.T) {
	topo := NewTopology(topologyRepo(t))
	g, err := topo.PowerTo(context.Background(), "feed-1")
	require.NoError(t, err)
	require.Equal(t, []string{"feed-1", "ups-1"}, deviceIDs(g))
	require.Equal(t, "UPS 1", g.Devices[1].Name)
	require.Equal(t, []PowerLink{{Src: "feed-1", Dst: "ups-1"}}, g.Powerchains)
}

func TestPowerchains(t *testing.T) {
	ctx := context.Background()
	topo := NewTopology(topologyRepo(t))

	t.Run("to", func(t *testing.T) {
		g, err := topo.Powerchains(ctx, SelectTo, "srv-1")
		require.NoError(t, err)
		require.Equal(t, []string{"srv-1", "ups-1", "feed-1", "feed-2"}, deviceIDs(g))
		require.Len(t, g.Powerchains, 3)
	})

	t.Run("from", func(t *testing.T) {
		g, err := topo.Powerchains(ctx, SelectFrom, "feed-1")
		require.NoError(t, err)
		require.Equal(t, []string{"feed-1", "ups-1", "srv-1"}, deviceIDs(g))
	})

	t.Run("filter_dc", func(t *testing.T) {
		g, err := topo.Powerchains(ctx, SelectFilterDC, "dc1")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"feed-1", "ups-1", "srv-1"}, deviceIDs(g))
		require.Len(t, g.Powerchains, 2)
	})

	t.Run("filter_dc on a room", func(t *testing.T) {
		_, err := topo.Powerchains(ctx, SelectFilterDC, "room-1")
		require.Equal(t, "Asset is not a datacenter", TopologyReason(err))
	})

	t.Run("filter_group", func(t *testing.T) {
		g, err := topo.Powerchains(ctx, SelectFilterGroup, "group-1")
		require.NoError(t, err)
		require.Equal(t, []string{"ups-1", "srv-1"}, deviceIDs(g))
		require.Equal(t, []PowerLink{{Src: "ups-1", Dst: "srv-1"}}, g.Powerchains)
	})

	t.Run("filter_group on a device", func(t *testing.T) {
		_, err := topo.Powerchains(ctx, SelectFilterGroup, "srv-1")
		require.Equal(t, "Asset is not a group", TopologyReason(err))
	})

	t.Run("bad selector", func(t *testing.T) {
		_, err := topo.Powerchains(ctx, "sideways", "srv-1")
		require.True(t, appErr.IsCode(err, appErr.CodeBadParams))
	})
}

func TestInputPowerchain(t *testing.T) {
	topo := NewTopology(topologyRepo(t))
	g, err := topo.InputPowerchain(context.Background(), "dc1")
	require.NoError(t, err)
	require.Equal(t, []string{"feed-2", "feed-1"}, deviceIDs(g))
	require.Equal(t, []PowerLink{{Src: "feed-2", Dst: "feed-1"}}, g.Powerchains)
}

func TestLocation(t *testing.T) {
	ctx := context.Background()
	topo := NewTopology(topologyRepo(t))

	t.Run("to", func(t *testing.T) {
		root, err := topo.LocationTo(ctx, "srv-1")
		require.NoError(t, err)
		require.Equal(t, "dc1", root.ID)
		require.Equal(t, "Data Center 1", root.Name)
		room := root.Contains[0]
		require.Equal(t, "room-1", room.ID)
		rack := room.Contains[0]
		require.Equal(t, "rack-1", rack.ID)
		require.Equal(t, "srv-1", rack.Contains[0].ID)
		require.Equal(t, "server", rack.Contains[0].Subtype)
	})

	t.Run("from one level", func(t *testing.T) {
		root, err := topo.LocationFrom(ctx, "dc1", LocationOptions{})
		require.NoError(t, err)
		require.Len(t, root.Contains, 2)
		require.Equal(t, "room-1", root.Contains[0].ID)
		require.Empty(t, root.Contains[0].Contains)
	})

	t.Run("from recursive with filter", func(t *testing.T) {
		root, err := topo.LocationFrom(ctx, "dc1", LocationOptions{Recursive: true, Filter: "rack"})
		require.NoError(t, err)
		require.Len(t, root.Contains, 1)
		require.Equal(t, "rack-1", root.Contains[0].ID)
	})

	t.Run("from everything containers only", func(t *testing.T) {
		root, err := topo.LocationFrom(ctx, "none", LocationOptions{Recursive: true, ContainersOnly: true})
		require.NoError(t, err)
		require.Equal(t, "none", root.ID)
		ids := []string{}
		for _, n := range root.Contains {
			ids = append(ids, n.ID)
			require.Equal(t, models.TypeName(models.TypeDatacenter), n.Type)
		}
		require.Equal(t, []string{"dc1", "dc2"}, ids)
		require.Equal(t, "rack-1", root.Contains[0].Contains[0].Contains[0].ID)
	})
}

func TestParseLocationOptions(t *testing.T) {
	o, err := ParseLocationOptions("recursive=true, filter=Rack,containers_only=false")
	require.NoError(t, err)
	require.Equal(t, LocationOptions{Recursive: true, Filter: "rack"}, o)

	_, err = ParseLocationOptions("depth=3")
	require.True(t, appErr.IsCode(err, appErr.CodeBadParams))
	_, err = ParseLocationOptions("filter=boat")
	require.True(t, appErr.IsCode(err, appErr.CodeBadParams))
}
