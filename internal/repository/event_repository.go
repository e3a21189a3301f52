package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

// EventRepository keeps the audit trail of emitted asset notifications.
type EventRepository interface {
	BaseRepository[models.AssetEvent]
	ListByIname(ctx context.Context, iname string, limit int) ([]models.AssetEvent, error)
}

type eventRepository struct {
	BaseRepository[models.AssetEvent]
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{BaseRepository: NewBaseRepository[models.AssetEvent](db, "id"), db: db}
}

func (r *eventRepository) ListByIname(ctx context.Context, iname string, limit int) ([]models.AssetEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []models.AssetEvent
	if err := r.db.WithContext(ctx).Where("iname = ?", iname).Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list asset events failed")
	}
	return out, nil
}
