package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

// User visible licensing refusals.
const (
	MsgManipulationProhibited = "Licensing limitation hit - asset manipulation is prohibited."
	MsgMaxActiveReached       = "Licensing limitation hit - maximum amount of active power devices allowed in license reached."
	MsgHasChildren            = "can't delete the asset because it has at least one child"
	MsgNonEmptyGroup          = "can't delete non empty group"
)

// AssetService is the write path shared by the bus handlers, the CSV import
// and the HTTP API.
type AssetService interface {
	Manipulate(ctx context.Context, m *ftyproto.Message, readOnly bool) (string, error)
	Create(ctx context.Context, a *models.Asset, force bool) (*models.Asset, error)
	Update(ctx context.Context, a *models.Asset) (*models.Asset, error)
	Delete(ctx context.Context, iname string) (*models.Asset, error)
	Get(ctx context.Context, iname string) (*models.Asset, error)
	ImportCSV(ctx context.Context, data []byte, user string, sendNotify bool) (map[int]ImportResult, error)
}

// Options tunes the validation of the write path.
type Options struct {
	EnameMaxLength  int
	MaxPowerSources int
}

type assetService struct {
	repo      repository.AssetRepository
	licensing *Licensing
	activator Activator
	events    *EventPublisher
	notifier  *Notifier
	opts      Options
}

var _ AssetService = (*assetService)(nil)

func NewAssetService(repo repository.AssetRepository, licensing *Licensing, activator Activator,
	events *EventPublisher, notifier *Notifier, opts Options) AssetService {
	if opts.EnameMaxLength == 0 {
		opts.EnameMaxLength = 50
	}
	return &assetService{
		repo:      repo,
		licensing: licensing,
		activator: activator,
		events:    events,
		notifier:  notifier,
		opts:      opts,
	}
}

func (s *assetService) Manipulate(ctx context.Context, m *ftyproto.Message, readOnly bool) (string, error) {
	if !s.licensing.Configurable() {
		return "", appErr.New(appErr.CodeLicensing, MsgManipulationProhibited)
	}
	a, err := FromProto(m, readOnly)
	if err != nil {
		return "", err
	}
	logger.L().Debug("asset manipulation",
		zap.String("operation", m.Operation),
		zap.String("asset", a.Iname),
		zap.String("type", a.Type),
		zap.String("subtype", a.Subtype))

	switch m.Operation {
	case ftyproto.OpCreate, ftyproto.OpCreateForce:
		created, err := s.create(ctx, a, m.Operation == ftyproto.OpCreateForce, true)
		if err != nil {
			return "", err
		}
		return created.Iname, nil
	case ftyproto.OpUpdate:
		updated, err := s.update(ctx, a, true)
		if err != nil {
			return "", err
		}
		return updated.Iname, nil
	case ftyproto.OpDelete, ftyproto.OpRetire:
		if _, err := s.Delete(ctx, a.Iname); err != nil {
			return "", err
		}
		return a.Iname, nil
	}
	return "", appErr.New(appErr.CodeInvalid, appErr.WireOperationNotImplemented)
}

func (s *assetService) Create(ctx context.Context, a *models.Asset, force bool) (*models.Asset, error) {
	return s.create(ctx, a, force, true)
}

func (s *assetService) Update(ctx context.Context, a *models.Asset) (*models.Asset, error) {
	return s.update(ctx, a, true)
}

func (s *assetService) Get(ctx context.Context, iname string) (*models.Asset, error) {
	return s.repo.LoadAsset(ctx, iname)
}

// prepare runs the checks shared by create and update, in order.
func (s *assetService) prepare(ctx context.Context, a *models.Asset, creating bool) error {
	if a.TypeID() == models.TypeUnknown {
		return appErr.ParamRequired("type")
	}
	if a.Status == "" {
		a.Status = models.StatusNonactive
	}
	if !models.IsValidStatus(a.Status) {
		return appErr.BadParams("status", a.Status, models.StatusActive+" or "+models.StatusNonactive)
	}
	if a.Priority == 0 {
		a.Priority = 5
	}
	if a.Ext == nil {
		a.Ext = map[string]models.ExtValue{}
	}
	if err := CheckParent(ctx, s.repo, a); err != nil {
		return err
	}
	if err := NormalizeExt(a); err != nil {
		return err
	}
	if err := CheckPlacement(ctx, s.repo, a); err != nil {
		return err
	}
	if v, ok := a.Ext[ExtName]; ok && v.Value != "" {
		name, err := NormName(ctx, s.repo, v.Value, s.opts.EnameMaxLength, a.ID)
		if err != nil {
			return err
		}
		v.Value = name
		a.Ext[ExtName] = v
	}
	if creating {
		if err := CheckDuplicate(ctx, s.repo, a); err != nil {
			return err
		}
	}
	return CheckPowerLinks(ctx, s.repo, a, s.opts.MaxPowerSources)
}

// isActivable applies the local active power device limit, then asks the
// activation service. Nonactive assets are always accepted.
func (s *assetService) isActivable(ctx context.Context, a *models.Asset) (bool, error) {
	if !a.IsActive() {
		return true, nil
	}
	if limit := s.licensing.MaxActive(); limit >= 0 && a.TypeID() == models.TypeDevice && models.IsPowerDevice(a.SubtypeID()) {
		rows, err := s.repo.SuperParents(ctx, repository.AssetFilter{
			TypeIDs:    []uint16{models.TypeDevice},
			SubtypeIDs: powerSubtypes(),
			Status:     models.StatusActive,
		})
		if err != nil {
			return false, err
		}
		n := 0
		for _, r := range rows {
			if r.ID != a.ID {
				n++
			}
		}
		if n >= limit {
			return false, nil
		}
	}
	return s.activator.IsActivable(ctx, a)
}

func (s *assetService) create(ctx context.Context, a *models.Asset, force, notify bool) (*models.Asset, error) {
	a.ID = 0
	if err := s.prepare(ctx, a, true); err != nil {
		return nil, err
	}

	ok, err := s.isActivable(ctx, a)
	if err != nil || !ok {
		if !force {
			if err != nil {
				return nil, err
			}
			return nil, appErr.New(appErr.CodeLicensing, MsgMaxActiveReached)
		}
		logger.L().Info("asset demoted to nonactive", zap.String("asset", a.Iname), zap.Error(err))
		a.Status = models.StatusNonactive
	}

	if !a.HasExt(ExtUUID) {
		a.SetExt(ExtUUID, AssetUUID(a.ExtString(ExtManufacturer), a.ExtString(ExtModel), a.ExtString(ExtSerial)), true)
	}
	if !a.HasExt(ExtCreateTS) {
		a.SetExt(ExtCreateTS, CreateTimestamp(s.events.now()), true)
	}
	// element, ext, links and groups are written in one transaction
	if _, err := s.repo.Insert(ctx, a); err != nil {
		return nil, err
	}

	if a.IsActive() {
		if err := s.activator.Activate(ctx, a); err != nil {
			if rerr := s.repo.Remove(ctx, a.ID); rerr != nil {
				logger.L().Error("rollback of unactivated asset failed", zap.String("asset", a.Iname), zap.Error(rerr))
			}
			return nil, err
		}
	}

	created, err := s.repo.LoadAsset(ctx, a.Iname)
	if err != nil {
		return nil, err
	}
	logger.L().Info("asset created", zap.String("asset", created.Iname), zap.String("type", created.Type))
	if notify {
		s.events.Publish(ctx, created.Iname, ftyproto.OpCreate)
		s.notifier.Created(ctx, created)
		s.republishDataCenter(ctx, created)
	}
	return created, nil
}

func (s *assetService) update(ctx context.Context, a *models.Asset, notify bool) (*models.Asset, error) {
	if a.Iname == "" {
		return nil, appErr.ParamRequired("name")
	}
	current, err := s.repo.LoadAsset(ctx, a.Iname)
	if err != nil {
		return nil, err
	}
	a.ID = current.ID
	a.Linked = mergeLinks(a.Linked, current.Linked)
	if a.Groups == nil {
		a.Groups = current.Groups
	}
	if a.Type == "" {
		a.Type = current.Type
	}
	if a.Subtype == "" {
		a.Subtype = current.Subtype
	}
	if a.Status == "" {
		a.Status = current.Status
	}
	if a.Priority == 0 {
		a.Priority = current.Priority
	}
	if a.Parent == "" {
		a.Parent = current.Parent
	}
	if err := s.prepare(ctx, a, false); err != nil {
		return nil, err
	}

	activate := !current.IsActive() && a.IsActive()
	deactivate := current.IsActive() && !a.IsActive()
	ok, err := s.isActivable(ctx, a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErr.New(appErr.CodeLicensing, MsgMaxActiveReached)
	}

	if err := s.repo.Save(ctx, a); err != nil {
		return nil, err
	}
	if activate {
		if err := s.activator.Activate(ctx, a); err != nil {
			if serr := s.repo.SetStatus(ctx, a.ID, models.StatusNonactive); serr != nil {
				logger.L().Error("status rollback failed", zap.String("asset", a.Iname), zap.Error(serr))
			}
			return nil, err
		}
	} else if deactivate {
		if err := s.activator.Deactivate(ctx, a); err != nil {
			if serr := s.repo.SetStatus(ctx, a.ID, models.StatusActive); serr != nil {
				logger.L().Error("status rollback failed", zap.String("asset", a.Iname), zap.Error(serr))
			}
			return nil, err
		}
	}

	after, err := s.repo.LoadAsset(ctx, a.Iname)
	if err != nil {
		return nil, err
	}
	logger.L().Info("asset updated", zap.String("asset", after.Iname))
	if notify {
		s.events.Publish(ctx, after.Iname, ftyproto.OpUpdate)
		s.notifier.Updated(ctx, current, after)
		s.republishDataCenter(ctx, after)
	}
	return after, nil
}

func (s *assetService) Delete(ctx context.Context, iname string) (*models.Asset, error) {
	if iname == "" {
		return nil, appErr.ParamRequired("name")
	}
	current, err := s.repo.LoadAsset(ctx, iname)
	if err != nil {
		return nil, err
	}
	typeID := current.TypeID()
	if models.IsContainer(typeID) {
		n, err := s.repo.CountChildren(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, appErr.New(appErr.CodeConflict, MsgHasChildren)
		}
	}
	if typeID == models.TypeGroup {
		n, err := s.repo.CountGroupMembers(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, appErr.New(appErr.CodeConflict, MsgNonEmptyGroup)
		}
	}

	event, err := s.events.Build(ctx, iname, ftyproto.OpDelete)
	if err != nil {
		logger.L().Warn("delete event not built", zap.String("asset", iname), zap.Error(err))
	}
	dc := s.dataCenterName(ctx, current)

	if current.IsActive() {
		if err := s.activator.Deactivate(ctx, current); err != nil {
			logger.L().Warn("deactivation before delete failed", zap.String("asset", iname), zap.Error(err))
		}
	}
	if err := s.repo.Remove(ctx, current.ID); err != nil {
		return nil, err
	}
	logger.L().Info("asset deleted", zap.String("asset", iname))

	if event != nil {
		s.events.Send(ctx, event)
	}
	s.notifier.Deleted(ctx, current)
	if dc != "" && current.SubtypeID() == models.SubtypeUPS {
		s.events.Publish(ctx, dc, ftyproto.OpUpdate)
	}
	return current, nil
}

// republishDataCenter refreshes the ups list of the data center holding a UPS.
func (s *assetService) republishDataCenter(ctx context.Context, a *models.Asset) {
	if a.TypeID() != models.TypeDevice || a.SubtypeID() != models.SubtypeUPS {
		return
	}
	if dc := s.dataCenterName(ctx, a); dc != "" {
		s.events.Publish(ctx, dc, ftyproto.OpUpdate)
	}
}

func (s *assetService) dataCenterName(ctx context.Context, a *models.Asset) string {
	if a.ParentID == 0 {
		return ""
	}
	sp, err := s.repo.SuperParent(ctx, a.ParentID)
	if err != nil {
		logger.L().Warn("data center lookup failed", zap.String("asset", a.Iname), zap.Error(err))
		return ""
	}
	top := sp.TopContainer()
	if top.TypeID != models.TypeDatacenter {
		return ""
	}
	return top.Name
}

// mergeLinks adds the current links not overridden by the requested ones.
func mergeLinks(requested, current []models.Link) []models.Link {
	type key struct {
		src string
		typ uint16
	}
	seen := map[key]bool{}
	out := make([]models.Link, 0, len(requested)+len(current))
	for _, l := range requested {
		seen[key{l.Source, l.LinkType}] = true
		out = append(out, l)
	}
	for _, l := range current {
		if !seen[key{l.Source, l.LinkType}] {
			out = append(out, l)
		}
	}
	return out
}

func powerSubtypes() []uint16 {
	return []uint16{models.SubtypeUPS, models.SubtypeEPDU, models.SubtypePDU, models.SubtypeSTS, models.SubtypeGenset}
}
