package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/services"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

// handleAssetsInContainer serves "GET <container> [filters...]".
func (a *Agent) handleAssetsInContainer(ctx context.Context, m *bus.Message) {
	if m.Len() < 2 {
		a.log.Error("assets in container request too short", zap.String("sender", m.Sender))
		return
	}
	cmd, _ := m.Pop()
	if cmd != cmdGet {
		a.reply(ctx, m, SubjectAssetsInContainer, statusError, appErr.WireBadCommand)
		return
	}
	container, _ := m.Pop()
	names, err := services.SelectAssets(ctx, a.repo, container, m.Strings())
	if err != nil {
		a.log.Info("assets in container failed", zap.String("container", container), zap.Error(err))
		a.reply(ctx, m, SubjectAssetsInContainer, statusError, appErr.WireReason(err))
		return
	}
	a.reply(ctx, m, SubjectAssetsInContainer, append([]string{statusOK}, names...)...)
}

// handleAssets serves "GET <uuid> [filters...]".
func (a *Agent) handleAssets(ctx context.Context, m *bus.Message) {
	cmd, ok := m.Pop()
	if !ok {
		a.reply(ctx, m, SubjectAssets, "0", statusError, appErr.WireMissingCommand)
		return
	}
	uuid, hasUUID := m.Pop()
	if cmd != cmdGet {
		out := []string{statusError, appErr.WireBadCommand}
		if hasUUID {
			out = append([]string{uuid}, out...)
		}
		a.reply(ctx, m, SubjectAssets, out...)
		return
	}
	names, err := services.SelectAssets(ctx, a.repo, "", m.Strings())
	if err != nil {
		a.log.Info("assets listing failed", zap.Error(err))
		a.reply(ctx, m, SubjectAssets, uuid, statusError, appErr.WireReason(err))
		return
	}
	a.reply(ctx, m, SubjectAssets, append([]string{uuid, statusOK}, names...)...)
}

// handleEname serves "<iname>" with the external name of the asset.
func (a *Agent) handleEname(ctx context.Context, m *bus.Message) {
	iname, ok := m.Pop()
	if !ok {
		a.reply(ctx, m, SubjectEnameFromIname, statusError, appErr.WireMissingIname)
		return
	}
	ename, err := a.repo.Ename(ctx, iname)
	if err != nil || ename == "" {
		a.reply(ctx, m, SubjectEnameFromIname, statusError, appErr.WireAssetNotFound)
		return
	}
	a.reply(ctx, m, SubjectEnameFromIname, statusOK, ename)
}

// handleRepublish republishes the listed assets, or all of them for "$all".
func (a *Agent) handleRepublish(ctx context.Context, m *bus.Message) {
	names := m.Strings()
	if len(names) == 0 || names[0] == republishAll {
		names = nil
	}
	if err := a.events.PublishAll(ctx, names); err != nil {
		a.log.Error("republish failed", zap.Error(err))
	}
}

// handleAssetDetail serves "GET <uuid> <iname>" with the fty-proto of the asset.
func (a *Agent) handleAssetDetail(ctx context.Context, m *bus.Message) {
	cmd, _ := m.Pop()
	uuid, hasUUID := m.Pop()
	if cmd != cmdGet {
		out := []string{statusError, appErr.WireBadCommand}
		if hasUUID {
			out = append([]string{uuid}, out...)
		}
		a.reply(ctx, m, SubjectAssetDetail, out...)
		return
	}
	iname, _ := m.Pop()
	msg, err := a.events.Build(ctx, iname, ftyproto.OpUpdate)
	if err != nil {
		a.log.Info("asset detail not found", zap.String("asset", iname), zap.Error(err))
		a.reply(ctx, m, SubjectAssetDetail, uuid, statusError, appErr.WireAssetNotFound)
		return
	}
	raw, err := ftyproto.Encode(msg)
	if err != nil {
		a.log.Error("asset detail not encoded", zap.String("asset", iname), zap.Error(err))
		a.reply(ctx, m, SubjectAssetDetail, uuid, statusError, appErr.WireInternalError)
		return
	}
	a.replyFrames(ctx, m, services.EventSubject(msg), []byte(uuid), raw)
}
