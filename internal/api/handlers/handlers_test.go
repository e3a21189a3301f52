package handlers

import (
	"context"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/services"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

func TestMain(m *testing.M) {
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type mockAssetService struct {
	mock.Mock
}

func (m *mockAssetService) Manipulate(ctx context.Context, msg *ftyproto.Message, readOnly bool) (string, error) {
	args := m.Called(ctx, msg, readOnly)
	return args.String(0), args.Error(1)
}

func (m *mockAssetService) Create(ctx context.Context, a *models.Asset, force bool) (*models.Asset, error) {
	args := m.Called(ctx, a, force)
	if v := args.Get(0); v != nil {
		return v.(*models.Asset), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAssetService) Update(ctx context.Context, a *models.Asset) (*models.Asset, error) {
	args := m.Called(ctx, a)
	if v := args.Get(0); v != nil {
		return v.(*models.Asset), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAssetService) Delete(ctx context.Context, iname string) (*models.Asset, error) {
	args := m.Called(ctx, iname)
	if v := args.Get(0); v != nil {
		return v.(*models.Asset), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAssetService) Get(ctx context.Context, iname string) (*models.Asset, error) {
	args := m.Called(ctx, iname)
	if v := args.Get(0); v != nil {
		return v.(*models.Asset), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAssetService) ImportCSV(ctx context.Context, data []byte, user string, sendNotify bool) (map[int]services.ImportResult, error) {
	args := m.Called(ctx, data, user, sendNotify)
	if v := args.Get(0); v != nil {
		return v.(map[int]services.ImportResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// withParams attaches chi URL parameters to ctx.
func withParams(ctx context.Context, kv ...string) context.Context {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return context.WithValue(ctx, chi.RouteCtxKey, rctx)
}
