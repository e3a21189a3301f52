package services

import (
	"context"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Activation oracle address and commands.
const (
	ActivatorPeer       = "etn-licensing-credits"
	CmdIsAssetActivable = "GET_IS_ASSET_ACTIVABLE"
	CmdActivateAsset    = "ACTIVATE_ASSET"
	CmdDeactivateAsset  = "DEACTIVATE_ASSET"
)

// Activator decides and records which assets consume activation credits.
type Activator interface {
	IsActivable(ctx context.Context, a *models.Asset) (bool, error)
	Activate(ctx context.Context, a *models.Asset) error
	Deactivate(ctx context.Context, a *models.Asset) error
}

type busActivator struct {
	bus bus.Bus
}

var _ Activator = (*busActivator)(nil)

// NewActivator returns an Activator talking to the licensing credits service.
func NewActivator(b bus.Bus) Activator {
	return &busActivator{bus: b}
}

func (o *busActivator) IsActivable(ctx context.Context, a *models.Asset) (bool, error) {
	frames, err := o.request(ctx, CmdIsAssetActivable, a)
	if err != nil {
		return false, err
	}
	ok, err := strconv.ParseBool(strings.TrimSpace(frames[0]))
	if err != nil {
		return false, appErr.Newf(appErr.CodeLicensing, "Unexpected activation reply '%s'", frames[0])
	}
	return ok, nil
}

func (o *busActivator) Activate(ctx context.Context, a *models.Asset) error {
	_, err := o.request(ctx, CmdActivateAsset, a)
	return err
}

func (o *busActivator) Deactivate(ctx context.Context, a *models.Asset) error {
	_, err := o.request(ctx, CmdDeactivateAsset, a)
	return err
}

func (o *busActivator) request(ctx context.Context, command string, a *models.Asset) ([]string, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "encode asset for activation")
	}
	logger.L().Debug("activation request", zap.String("command", command), zap.String("asset", a.Iname))

	rep, err := o.bus.Request(ctx, ActivatorPeer, command, []byte(command), payload)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeLicensing, err.Error())
	}
	frames := rep.Strings()
	if len(frames) == 0 {
		return nil, appErr.New(appErr.CodeLicensing, "Empty activation reply")
	}
	if frames[0] == "ERROR" {
		if len(frames) == 2 {
			return nil, appErr.New(appErr.CodeLicensing, frames[1])
		}
		return nil, appErr.New(appErr.CodeLicensing, "Missing data for error")
	}
	if frames[0] == "OK" && len(frames) > 1 {
		frames = frames[1:]
	}
	return frames, nil
}
