package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

const (
	modeReadOnly  = "READONLY"
	modeReadWrite = "READWRITE"
)

// handleManipulation serves "READONLY|READWRITE <fty-proto asset>".
func (a *Agent) handleManipulation(ctx context.Context, m *bus.Message) {
	mode, _ := m.Pop()
	var readOnly bool
	switch mode {
	case modeReadOnly:
		readOnly = true
	case modeReadWrite:
	default:
		a.log.Error("bad manipulation mode", zap.String("mode", mode), zap.String("sender", m.Sender))
		a.reply(ctx, m, SubjectManipulation, statusError, appErr.WireBadCommand)
		return
	}

	if m.Len() == 0 || !ftyproto.IsFtyProto(m.Frames[0]) {
		a.log.Error("manipulation payload is not fty-proto", zap.String("sender", m.Sender))
		return
	}
	msg, err := ftyproto.Decode(m.Frames[0])
	if err != nil {
		a.log.Error("manipulation payload not decoded", zap.String("sender", m.Sender), zap.Error(err))
		return
	}

	iname, err := a.svc.Manipulate(ctx, msg, readOnly)
	if err != nil {
		a.log.Error("asset manipulation failed",
			zap.String("asset", msg.Name),
			zap.String("operation", msg.Operation),
			zap.Error(err))
		a.reply(ctx, m, SubjectManipulation, statusError, appErr.Reason(err))
		return
	}
	a.reply(ctx, m, SubjectManipulation, statusOK, iname)
}
