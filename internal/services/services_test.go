package services

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus/bustest"
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

type mockActivator struct {
	mock.Mock
}

func (m *mockActivator) IsActivable(ctx context.Context, a *models.Asset) (bool, error) {
	args := m.Called(ctx, a)
	return args.Bool(0), args.Error(1)
}

func (m *mockActivator) Activate(ctx context.Context, a *models.Asset) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockActivator) Deactivate(ctx context.Context, a *models.Asset) error {
	return m.Called(ctx, a).Error(0)
}

type fixture struct {
	repo      *repotest.Memory
	bus       *bustest.Recorder
	licensing *Licensing
	activator *mockActivator
	svc       AssetService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      repotest.NewMemory(),
		bus:       bustest.NewRecorder("asset-agent"),
		licensing: NewLicensing(),
		activator: &mockActivator{},
	}
	f.svc = NewAssetService(f.repo, f.licensing, f.activator,
		NewEventPublisher(f.repo, f.bus), NewNotifier(f.bus, nil),
		Options{EnameMaxLength: 50, MaxPowerSources: 8})
	t.Cleanup(func() { f.activator.AssertExpectations(t) })
	return f
}

// seed stores an asset directly, bypassing validation. ext holds key/value pairs.
func seed(t *testing.T, repo *repotest.Memory, iname, typ, subtype, parent string, ext ...string) *models.Asset {
	t.Helper()
	ctx := context.Background()
	a := models.NewAsset()
	a.Iname = iname
	a.Type = typ
	if subtype != "" {
		a.Subtype = subtype
	}
	if parent != "" {
		p, err := repo.GetByName(ctx, parent)
		require.NoError(t, err)
		a.ParentID = p.ID
		a.Parent = parent
	}
	for i := 0; i+1 < len(ext); i += 2 {
		a.SetExt(ext[i], ext[i+1], false)
	}
	_, err := repo.Insert(ctx, a)
	require.NoError(t, err)
	return a
}

// link stores a power link src -> dst.
func link(t *testing.T, repo *repotest.Memory, src, dst string) {
	t.Helper()
	ctx := context.Background()
	a, err := repo.LoadAsset(ctx, dst)
	require.NoError(t, err)
	a.Linked = append(a.Linked, models.Link{Source: src, LinkType: models.LinkTypePowerChain})
	require.NoError(t, repo.Save(ctx, a))
}
