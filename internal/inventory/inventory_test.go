package inventory

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/stretchr/testify/require"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository/repotest"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

func TestMain(m *testing.M) {
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

// countingRepo counts ext writes on top of the in-memory store.
type countingRepo struct {
	*repotest.Memory
	writes []string
}

func (r *countingRepo) UpsertExt(ctx context.Context, id uint32, keytag, value string, readOnly bool) error {
	r.writes = append(r.writes, keytag+"="+value)
	return r.Memory.UpsertExt(ctx, id, keytag, value, readOnly)
}

func setup(t *testing.T) (*Inventory, *countingRepo) {
	t.Helper()
	repo := &countingRepo{Memory: repotest.NewMemory()}
	a := models.NewAsset()
	a.Iname = "rackcontroller-0"
	a.Type = "device"
	a.Subtype = "rackcontroller"
	_, err := repo.Insert(context.Background(), a)
	require.NoError(t, err)

	cache, err := NewCache(context.Background(), time.Hour)
	require.NoError(t, err)
	return New(repo, cache), repo
}

func entry(t *testing.T, name, op string, ext map[string]string) *bus.Message {
	t.Helper()
	raw, err := ftyproto.Encode(ftyproto.NewAsset(name, op,
		map[string]string{"type": "device", "subtype": "rackcontroller"}, ext))
	require.NoError(t, err)
	return &bus.Message{Subject: "device.rackcontroller@" + name, Frames: [][]byte{raw}}
}

func TestInventoryWritesChangedValuesOnly(t *testing.T) {
	ctx := context.Background()
	inv, repo := setup(t)

	inv.Handle(ctx, entry(t, "rackcontroller-0", ftyproto.OpInventory, map[string]string{"ip.1": "10.0.0.5", "hostname.1": "rc"}))
	require.Equal(t, []string{"hostname.1=rc", "ip.1=10.0.0.5"}, repo.writes)

	stored, err := repo.LoadAsset(ctx, "rackcontroller-0")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", stored.ExtString("ip.1"))
	require.True(t, stored.Ext["ip.1"].ReadOnly)

	repo.writes = nil
	inv.Handle(ctx, entry(t, "rackcontroller-0", ftyproto.OpInventory, map[string]string{"ip.1": "10.0.0.6", "hostname.1": "rc"}))
	require.Equal(t, []string{"ip.1=10.0.0.6"}, repo.writes)

	repo.writes = nil
	inv.Handle(ctx, entry(t, "rackcontroller-0", ftyproto.OpUpdate, map[string]string{"ip.1": "10.0.0.7"}))
	require.Empty(t, repo.writes)
}

func TestInventoryEvictsOnDelete(t *testing.T) {
	ctx := context.Background()
	inv, repo := setup(t)
	ext := map[string]string{"ip.1": "10.0.0.5", "mac.1": "00:11:22:33:44:55"}

	require.NoError(t, inv.Update(ctx, "rackcontroller-0", ext))
	require.NoError(t, inv.cache.Set(cacheKey("rackcontroller-01", "ip.1"), []byte("x")))

	inv.Handle(ctx, entry(t, "rackcontroller-0", ftyproto.OpDelete, nil))
	for k := range ext {
		_, err := inv.cache.Get(cacheKey("rackcontroller-0", k))
		require.ErrorIs(t, err, bigcache.ErrEntryNotFound, k)
	}
	_, err := inv.cache.Get(cacheKey("rackcontroller-01", "ip.1"))
	require.NoError(t, err)

	repo.writes = nil
	require.NoError(t, inv.Update(ctx, "rackcontroller-0", ext))
	require.Len(t, repo.writes, 2)
}

func TestInventoryEvictCount(t *testing.T) {
	ctx := context.Background()
	inv, _ := setup(t)
	require.NoError(t, inv.Update(ctx, "rackcontroller-0", map[string]string{"ip.1": "10.0.0.5", "ip.2": "10.0.0.6"}))

	require.Equal(t, 2, inv.Evict("rackcontroller-0"))
	_, err := inv.cache.Get(cacheKey("rackcontroller-0", "ip.1"))
	require.ErrorIs(t, err, bigcache.ErrEntryNotFound)
	require.Zero(t, inv.Evict("rackcontroller-0"))
}

func TestInventoryUnknownAsset(t *testing.T) {
	inv, _ := setup(t)
	err := inv.Update(context.Background(), "ghost", map[string]string{"ip.1": "1.2.3.4"})
	require.Error(t, err)
}

func TestInventoryRun(t *testing.T) {
	inv, repo := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	stream := make(chan *bus.Message, 1)
	done := make(chan error, 1)
	go func() { done <- inv.Run(ctx, stream) }()

	stream <- entry(t, "rackcontroller-0", ftyproto.OpInventory, map[string]string{"fqdn.1": "rc.example.com"})
	require.Eventually(t, func() bool {
		a, err := repo.Memory.LoadAsset(context.Background(), "rackcontroller-0")
		return err == nil && a.ExtString("fqdn.1") == "rc.example.com"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
