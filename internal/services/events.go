package services

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

// EventPublisher builds canonical asset messages from the store and puts
// them on the ASSETS stream.
type EventPublisher struct {
	repo repository.AssetRepository
	bus  bus.Bus
	now  func() time.Time
}

func NewEventPublisher(repo repository.AssetRepository, b bus.Bus) *EventPublisher {
	return &EventPublisher{repo: repo, bus: b, now: time.Now}
}

// Build loads iname and renders it as an asset message. A missing uuid or
// create_ts is generated and stored read-only first.
func (p *EventPublisher) Build(ctx context.Context, iname, operation string) (*ftyproto.Message, error) {
	a, err := p.repo.LoadAsset(ctx, iname)
	if err != nil {
		return nil, err
	}
	if err := p.ensureIdentity(ctx, a); err != nil {
		return nil, err
	}
	sp, err := p.repo.SuperParent(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	var ups []string
	if a.TypeID() == models.TypeDatacenter {
		if ups, err = p.dcUPSes(ctx, a.ID); err != nil {
			return nil, err
		}
	}
	return EventFromAsset(a, sp, ups, operation), nil
}

func (p *EventPublisher) ensureIdentity(ctx context.Context, a *models.Asset) error {
	n, err := p.repo.CountKeytag(ctx, a.ID, ExtUUID)
	if err != nil {
		return err
	}
	if n == 0 {
		id := AssetUUID(a.ExtString(ExtManufacturer), a.ExtString(ExtModel), a.ExtString(ExtSerial))
		if err := p.repo.UpsertExt(ctx, a.ID, ExtUUID, id, true); err != nil {
			return err
		}
		a.SetExt(ExtUUID, id, true)
	}
	n, err = p.repo.CountKeytag(ctx, a.ID, ExtCreateTS)
	if err != nil {
		return err
	}
	if n == 0 {
		ts := CreateTimestamp(p.now())
		if err := p.repo.UpsertExt(ctx, a.ID, ExtCreateTS, ts, true); err != nil {
			return err
		}
		a.SetExt(ExtCreateTS, ts, true)
	}
	return nil
}

func (p *EventPublisher) dcUPSes(ctx context.Context, dcID uint32) ([]string, error) {
	rows, err := p.repo.SuperParents(ctx, repository.AssetFilter{
		ContainerID: dcID,
		TypeIDs:     []uint16{models.TypeDevice},
		SubtypeIDs:  []uint16{models.SubtypeUPS},
		Status:      models.StatusActive,
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Publish builds and sends the message of iname. Failures are logged only.
func (p *EventPublisher) Publish(ctx context.Context, iname, operation string) {
	m, err := p.Build(ctx, iname, operation)
	if err != nil {
		logger.L().Info("not sending message for asset", zap.String("asset", iname), zap.Error(err))
		return
	}
	p.Send(ctx, m)
}

// EventSubject returns the stream subject of an asset message.
func EventSubject(m *ftyproto.Message) string {
	return models.Subject(m.AuxString(AuxType, ""), m.AuxString(AuxSubtype, ""), m.Name)
}

// Send encodes m and puts it on the stream under its canonical subject.
func (p *EventPublisher) Send(ctx context.Context, m *ftyproto.Message) {
	subject := EventSubject(m)
	frame, err := ftyproto.Encode(m)
	if err != nil {
		logger.L().Error("not sending message for asset", zap.String("asset", m.Name), zap.Error(err))
		return
	}
	if err := p.bus.Publish(ctx, bus.StreamAssets, subject, frame); err != nil {
		logger.L().Info("not sending message for asset", zap.String("asset", m.Name), zap.Error(err))
		return
	}
	logger.L().Debug("asset published", zap.String("subject", subject), zap.String("operation", m.Operation))
}

// PublishContainer republishes every asset located inside container.
func (p *EventPublisher) PublishContainer(ctx context.Context, container string) error {
	e, err := p.repo.GetByName(ctx, container)
	if err != nil {
		return err
	}
	rows, err := p.repo.SuperParents(ctx, repository.AssetFilter{ContainerID: e.ID})
	if err != nil {
		return err
	}
	for _, r := range rows {
		p.Publish(ctx, r.Name, ftyproto.OpUpdate)
	}
	return nil
}

// PublishAll republishes the listed assets, or every asset when names is empty.
func (p *EventPublisher) PublishAll(ctx context.Context, names []string) error {
	if len(names) == 0 {
		rows, err := p.repo.SuperParents(ctx, repository.AssetFilter{})
		if err != nil {
			return err
		}
		for _, r := range rows {
			names = append(names, r.Name)
		}
	}
	for _, n := range names {
		p.Publish(ctx, n, ftyproto.OpUpdate)
	}
	return nil
}
