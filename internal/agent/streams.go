package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
)

// HandleStream consumes one entry of the ASSETS or LICENSING stream.
// Licensing metrics update the limits; an asset update republishes every
// asset located inside it.
func (a *Agent) HandleStream(ctx context.Context, m *bus.Message) {
	if m.Len() == 0 || !ftyproto.IsFtyProto(m.Frames[0]) {
		a.log.Debug("stream entry is not fty-proto", zap.String("subject", m.Subject))
		return
	}
	msg, err := ftyproto.Decode(m.Frames[0])
	if err != nil {
		a.log.Error("stream entry not decoded", zap.String("subject", m.Subject), zap.Error(err))
		return
	}

	switch msg.ID {
	case ftyproto.MetricID:
		if a.licensing.Apply(msg) {
			a.log.Info("licensing limit updated",
				zap.String("metric", msg.Type),
				zap.String("value", msg.Value))
		}
	case ftyproto.AssetID:
		if msg.Operation != ftyproto.OpUpdate {
			return
		}
		if err := a.events.PublishContainer(ctx, msg.Name); err != nil {
			a.log.Info("container republish failed", zap.String("asset", msg.Name), zap.Error(err))
		}
	default:
		a.log.Debug("stream entry ignored", zap.String("subject", m.Subject), zap.Stringer("id", msg.ID))
	}
}
