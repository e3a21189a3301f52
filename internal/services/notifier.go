package services

import (
	"context"

	"github.com/r3labs/diff"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

// Notification kinds of the new generation queue.
const (
	NotifyCreated = "CREATED"
	NotifyUpdated = "UPDATED"
	NotifyDeleted = "DELETED"

	notifyChannelPrefix = "FTY.T.ASSET."
)

// NotifyChannel returns the pub/sub channel of a notification kind.
func NotifyChannel(kind string) string { return notifyChannelPrefix + kind }

// UpdatePayload is the body of an UPDATED notification.
type UpdatePayload struct {
	Before *models.Asset `json:"before"`
	After  *models.Asset `json:"after"`
}

type auditRecord struct {
	UpdatePayload
	Changes diff.Changelog `json:"changes,omitempty"`
}

// Notifier publishes JSON asset notifications and records them in the
// audit table when one is configured.
type Notifier struct {
	bus    bus.Bus
	events repository.EventRepository
}

// NewNotifier builds a Notifier. events may be nil.
func NewNotifier(b bus.Bus, events repository.EventRepository) *Notifier {
	return &Notifier{bus: b, events: events}
}

func (n *Notifier) Created(ctx context.Context, a *models.Asset) {
	n.send(ctx, NotifyCreated, a.Iname, a, a)
}

func (n *Notifier) Deleted(ctx context.Context, a *models.Asset) {
	n.send(ctx, NotifyDeleted, a.Iname, a, a)
}

func (n *Notifier) Updated(ctx context.Context, before, after *models.Asset) {
	body := UpdatePayload{Before: before, After: after}
	rec := auditRecord{UpdatePayload: body}
	changes, err := diff.Diff(before, after)
	if err != nil {
		logger.L().Warn("asset changelog failed", zap.String("asset", after.Iname), zap.Error(err))
	} else {
		rec.Changes = changes
		for _, c := range changes {
			logger.L().Debug("asset changed",
				zap.String("asset", after.Iname),
				zap.Strings("path", c.Path),
				zap.Any("from", c.From),
				zap.Any("to", c.To))
		}
	}
	n.send(ctx, NotifyUpdated, after.Iname, body, rec)
}

func (n *Notifier) send(ctx context.Context, kind, iname string, body, audit any) {
	payload, err := json.Marshal(body)
	if err != nil {
		logger.L().Error("encode notification failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	if err := n.bus.Notify(ctx, NotifyChannel(kind), payload); err != nil {
		logger.L().Warn("notification not sent", zap.String("kind", kind), zap.String("asset", iname), zap.Error(err))
	}
	if n.events == nil {
		return
	}
	raw, err := json.Marshal(audit)
	if err != nil {
		logger.L().Error("encode audit record failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	ev := &models.AssetEvent{Iname: iname, Kind: kind, Payload: datatypes.JSON(raw)}
	if err := n.events.Create(ctx, ev); err != nil {
		logger.L().Warn("audit record not stored", zap.String("kind", kind), zap.String("asset", iname), zap.Error(err))
	}
}
