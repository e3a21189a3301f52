package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

// HandleNG serves the ng request queue. GET <iname> replies with the JSON
// document of the asset.
func (a *Agent) HandleNG(ctx context.Context, m *bus.Message) {
	if m.Subject != SubjectGet {
		a.log.Info("unsupported ng subject", zap.String("subject", m.Subject))
		a.reply(ctx, m, m.Subject, statusError, "Unsupported subject '"+m.Subject+"'")
		return
	}
	iname, ok := m.Pop()
	if !ok || iname == "" {
		a.reply(ctx, m, m.Subject, statusError, appErr.ParamRequired("iname").Message)
		return
	}
	asset, err := a.svc.Get(ctx, iname)
	if err != nil {
		a.log.Info("ng get failed", zap.String("asset", iname), zap.Error(err))
		a.reply(ctx, m, m.Subject, statusError, appErr.Reason(err))
		return
	}
	raw, err := json.Marshal(asset)
	if err != nil {
		a.reply(ctx, m, m.Subject, statusError, err.Error())
		return
	}
	a.reply(ctx, m, m.Subject, statusOK, string(raw))
}
