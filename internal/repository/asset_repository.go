package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/database"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

// AssetFilter narrows a super-parent listing. Zero fields do not filter;
// type and subtype sets are combined with AND.
type AssetFilter struct {
	ContainerID uint32
	TypeIDs     []uint16
	SubtypeIDs  []uint16
	Status      string
}

// AssetRepository is the persistent store of assets, their ext attributes,
// links and group memberships.
type AssetRepository interface {
	BaseRepository[models.AssetElement]

	GetByName(ctx context.Context, name string) (*models.AssetElement, error)
	ElementsByIDs(ctx context.Context, ids []uint32) (map[uint32]models.AssetElement, error)
	LoadAsset(ctx context.Context, name string) (*models.Asset, error)
	SuperParent(ctx context.Context, id uint32) (*models.SuperParent, error)
	SuperParents(ctx context.Context, f AssetFilter) ([]models.SuperParent, error)
	Children(ctx context.Context, parentID uint32) ([]models.AssetElement, error)
	CountChildren(ctx context.Context, id uint32) (int64, error)
	CountGroupMembers(ctx context.Context, id uint32) (int64, error)
	GroupMembers(ctx context.Context, id uint32) ([]models.AssetElement, error)

	Ename(ctx context.Context, iname string) (string, error)
	Ext(ctx context.Context, ids ...uint32) (map[uint32]map[string]models.ExtValue, error)
	ExtValuesWithPrefix(ctx context.Context, keytag, prefix string, excludeID uint32) ([]string, error)
	FindByExt(ctx context.Context, match map[string]string) ([]uint32, error)
	CountKeytag(ctx context.Context, id uint32, keytag string) (int64, error)
	UpsertExt(ctx context.Context, id uint32, keytag, value string, readOnly bool) error

	LinksByType(ctx context.Context, linkType uint16) ([]models.AssetLink, error)
	IncomingLinks(ctx context.Context, id uint32) ([]models.AssetLink, error)

	Insert(ctx context.Context, a *models.Asset) (uint32, error)
	Save(ctx context.Context, a *models.Asset) error
	SetStatus(ctx context.Context, id uint32, status string) error
	Remove(ctx context.Context, id uint32) error
}

const elementPK = "id_asset_element"

var parentIDColumns = func() string {
	cols := make([]string, 0, models.MaxParentLevels)
	for i := 1; i <= models.MaxParentLevels; i++ {
		cols = append(cols, fmt.Sprintf("id_parent%d", i))
	}
	return strings.Join(cols, ", ")
}()

type assetRepository struct {
	BaseRepository[models.AssetElement]
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{BaseRepository: NewBaseRepository[models.AssetElement](db, elementPK), db: db}
}

func (r *assetRepository) GetByName(ctx context.Context, name string) (*models.AssetElement, error) {
	var e models.AssetElement
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ElementNotFound(name)
		}
		return nil, appErr.Wrap(err, appErr.CodeInternal, "get asset by name failed")
	}
	return &e, nil
}

func (r *assetRepository) ElementsByIDs(ctx context.Context, ids []uint32) (map[uint32]models.AssetElement, error) {
	out := make(map[uint32]models.AssetElement, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.AssetElement
	if err := r.db.WithContext(ctx).Where(elementPK+" IN ?", ids).Find(&rows).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list assets by id failed")
	}
	for _, e := range rows {
		out[e.ID] = e
	}
	return out, nil
}

func (r *assetRepository) LoadAsset(ctx context.Context, name string) (*models.Asset, error) {
	e, err := r.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	a := &models.Asset{
		ID:       e.ID,
		Iname:    e.Name,
		Status:   e.Status,
		Type:     models.TypeName(e.TypeID),
		Subtype:  models.SubtypeName(e.SubtypeID),
		Priority: e.Priority,
		AssetTag: e.AssetTag,
		Ext:      map[string]models.ExtValue{},
	}
	if e.ParentID != nil {
		var parent models.AssetElement
		if err := r.GetByID(ctx, *e.ParentID, &parent); err != nil {
			return nil, err
		}
		a.ParentID = parent.ID
		a.Parent = parent.Name
	}

	ext, err := r.Ext(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if m, ok := ext[e.ID]; ok {
		a.Ext = m
	}

	links, err := r.IncomingLinks(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	srcIDs := make([]uint32, 0, len(links))
	for _, l := range links {
		srcIDs = append(srcIDs, l.SrcID)
	}
	sources, err := r.ElementsByIDs(ctx, srcIDs)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		a.Linked = append(a.Linked, models.Link{
			Source:   sources[l.SrcID].Name,
			LinkType: l.LinkTypeID,
			SrcOut:   deref(l.SrcOut),
			DestIn:   deref(l.DestIn),
		})
	}

	if err := r.db.WithContext(ctx).
		Table(models.GroupRelation{}.TableName()+" AS g").
		Joins("JOIN "+models.AssetElement{}.TableName()+" AS e ON e.id_asset_element = g.id_asset_group").
		Where("g.id_asset_element = ?", e.ID).
		Order("e.name").
		Pluck("e.name", &a.Groups).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list asset groups failed")
	}
	return a, nil
}

func (r *assetRepository) SuperParent(ctx context.Context, id uint32) (*models.SuperParent, error) {
	var sp models.SuperParent
	if err := r.db.WithContext(ctx).Where(elementPK+" = ?", id).First(&sp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ElementNotFound(fmt.Sprint(id))
		}
		return nil, appErr.Wrap(err, appErr.CodeInternal, "select super parent failed")
	}
	return &sp, nil
}

func (r *assetRepository) SuperParents(ctx context.Context, f AssetFilter) ([]models.SuperParent, error) {
	q := r.db.WithContext(ctx).Model(&models.SuperParent{})
	if f.ContainerID != 0 {
		q = q.Where("? IN ("+parentIDColumns+")", f.ContainerID)
	}
	if len(f.TypeIDs) > 0 {
		q = q.Where("id_type IN ?", f.TypeIDs)
	}
	if len(f.SubtypeIDs) > 0 {
		q = q.Where("id_subtype IN ?", f.SubtypeIDs)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []models.SuperParent
	if err := q.Order(elementPK).Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "select assets by container failed")
	}
	return out, nil
}

func (r *assetRepository) Children(ctx context.Context, parentID uint32) ([]models.AssetElement, error) {
	var out []models.AssetElement
	if err := r.db.WithContext(ctx).Where("id_parent = ?", parentID).Order(elementPK).Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list children failed")
	}
	return out, nil
}

func (r *assetRepository) CountChildren(ctx context.Context, id uint32) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.AssetElement{}).Where("id_parent = ?", id).Count(&n).Error; err != nil {
		return 0, appErr.Wrap(err, appErr.CodeInternal, "count children failed")
	}
	return n, nil
}

func (r *assetRepository) CountGroupMembers(ctx context.Context, id uint32) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.GroupRelation{}).Where("id_asset_group = ?", id).Count(&n).Error; err != nil {
		return 0, appErr.Wrap(err, appErr.CodeInternal, "count group members failed")
	}
	return n, nil
}

func (r *assetRepository) GroupMembers(ctx context.Context, id uint32) ([]models.AssetElement, error) {
	var rows []models.AssetElement
	err := r.db.WithContext(ctx).
		Where(elementPK+" IN (?)", r.db.Model(&models.GroupRelation{}).Select("id_asset_element").Where("id_asset_group = ?", id)).
		Order(elementPK).
		Find(&rows).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list group members failed")
	}
	return rows, nil
}

func (r *assetRepository) Ename(ctx context.Context, iname string) (string, error) {
	var row models.ElementExt
	if err := r.db.WithContext(ctx).Where("name = ?", iname).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", appErr.ElementNotFound(iname)
		}
		return "", appErr.Wrap(err, appErr.CodeInternal, "select ename failed")
	}
	return row.ExtName, nil
}

func (r *assetRepository) Ext(ctx context.Context, ids ...uint32) (map[uint32]map[string]models.ExtValue, error) {
	out := make(map[uint32]map[string]models.ExtValue, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.ExtAttribute
	if err := r.db.WithContext(ctx).Where(elementPK+" IN ?", ids).Order("keytag").Find(&rows).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "select ext attributes failed")
	}
	for _, x := range rows {
		m, ok := out[x.ElementID]
		if !ok {
			m = map[string]models.ExtValue{}
			out[x.ElementID] = m
		}
		m[x.Keytag] = models.ExtValue{Value: x.Value, ReadOnly: x.ReadOnly}
	}
	return out, nil
}

func (r *assetRepository) ExtValuesWithPrefix(ctx context.Context, keytag, prefix string, excludeID uint32) ([]string, error) {
	var out []string
	if err := r.db.WithContext(ctx).Model(&models.ExtAttribute{}).
		Where("keytag = ? AND value LIKE ? AND "+elementPK+" <> ?", keytag, escapeLike(prefix)+"%", excludeID).
		Order("value").
		Pluck("value", &out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "select ext values failed")
	}
	return out, nil
}

func (r *assetRepository) FindByExt(ctx context.Context, match map[string]string) ([]uint32, error) {
	if len(match) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(match))
	for k := range match {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cond := r.db.Session(&gorm.Session{NewDB: true})
	for i, k := range keys {
		if i == 0 {
			cond = cond.Where("keytag = ? AND value = ?", k, match[k])
			continue
		}
		cond = cond.Or("keytag = ? AND value = ?", k, match[k])
	}

	var ids []uint32
	if err := r.db.WithContext(ctx).Model(&models.ExtAttribute{}).
		Where(cond).
		Group(elementPK).
		Having("COUNT(DISTINCT keytag) = ?", len(keys)).
		Order(elementPK).
		Pluck(elementPK, &ids).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "select assets by ext failed")
	}
	return ids, nil
}

// CountKeytag returns 0 when the element does not exist.
func (r *assetRepository) CountKeytag(ctx context.Context, id uint32, keytag string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.ExtAttribute{}).
		Where(elementPK+" = ? AND keytag = ?", id, keytag).Count(&n).Error; err != nil {
		return 0, appErr.Wrap(err, appErr.CodeInternal, "count keytag failed")
	}
	return n, nil
}

func (r *assetRepository) UpsertExt(ctx context.Context, id uint32, keytag, value string, readOnly bool) error {
	return upsertExt(r.db.WithContext(ctx), id, keytag, value, readOnly)
}

func (r *assetRepository) LinksByType(ctx context.Context, linkType uint16) ([]models.AssetLink, error) {
	var out []models.AssetLink
	if err := r.db.WithContext(ctx).Where("id_asset_link_type = ?", linkType).Order("id_link").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "select links failed")
	}
	return out, nil
}

func (r *assetRepository) IncomingLinks(ctx context.Context, id uint32) ([]models.AssetLink, error) {
	var out []models.AssetLink
	if err := r.db.WithContext(ctx).Where("id_asset_device_dest = ?", id).Order("id_link").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "select incoming links failed")
	}
	return out, nil
}

func (r *assetRepository) Insert(ctx context.Context, a *models.Asset) (uint32, error) {
	e := a.Element()
	e.ID = 0
	generated := e.Name == ""
	if generated {
		e.Name = uuid.NewString()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(e).Error; err != nil {
			return mapWriteError(err, e.Name)
		}
		if generated {
			e.Name = fmt.Sprintf("%s-%d", models.InamePrefix(e.TypeID, e.SubtypeID), e.ID)
			if err := tx.Model(&models.AssetElement{}).Where(elementPK+" = ?", e.ID).Update("name", e.Name).Error; err != nil {
				return mapWriteError(err, e.Name)
			}
		}
		if err := writeExt(tx, e.ID, a.Ext); err != nil {
			return err
		}
		if err := writeLinks(tx, e.ID, a.Linked); err != nil {
			return err
		}
		return writeGroups(tx, e.ID, a.Groups)
	})
	if err != nil {
		return 0, err
	}
	a.ID = e.ID
	a.Iname = e.Name
	return e.ID, nil
}

func (r *assetRepository) Save(ctx context.Context, a *models.Asset) error {
	if a.ID == 0 {
		return appErr.ParamRequired("id")
	}
	e := a.Element()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AssetElement{}).Where(elementPK+" = ?", e.ID).Updates(map[string]any{
			"name":       e.Name,
			"id_type":    e.TypeID,
			"id_subtype": e.SubtypeID,
			"id_parent":  e.ParentID,
			"status":     e.Status,
			"priority":   e.Priority,
			"asset_tag":  e.AssetTag,
		})
		if res.Error != nil {
			return mapWriteError(res.Error, e.Name)
		}
		if res.RowsAffected == 0 {
			return appErr.ElementNotFound(e.Name)
		}
		if err := tx.Where(elementPK+" = ? AND read_only = false", e.ID).Delete(&models.ExtAttribute{}).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "delete ext attributes failed")
		}
		if err := writeExt(tx, e.ID, a.Ext); err != nil {
			return err
		}
		if err := tx.Where("id_asset_device_dest = ?", e.ID).Delete(&models.AssetLink{}).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "delete links failed")
		}
		if err := writeLinks(tx, e.ID, a.Linked); err != nil {
			return err
		}
		if err := tx.Where(elementPK+" = ?", e.ID).Delete(&models.GroupRelation{}).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "delete group relations failed")
		}
		return writeGroups(tx, e.ID, a.Groups)
	})
}

func (r *assetRepository) SetStatus(ctx context.Context, id uint32, status string) error {
	res := r.db.WithContext(ctx).Model(&models.AssetElement{}).Where(elementPK+" = ?", id).Update("status", status)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update status failed")
	}
	if res.RowsAffected == 0 {
		return appErr.ElementNotFound(fmt.Sprint(id))
	}
	return nil
}

func (r *assetRepository) Remove(ctx context.Context, id uint32) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			model any
			where string
		}{
			{&models.ExtAttribute{}, elementPK + " = ?"},
			{&models.AssetLink{}, "id_asset_device_src = ? OR id_asset_device_dest = ?"},
			{&models.GroupRelation{}, "id_asset_element = ? OR id_asset_group = ?"},
		}
		for _, s := range steps {
			args := []any{id}
			if strings.Contains(s.where, " OR ") {
				args = append(args, id)
			}
			if err := tx.Where(s.where, args...).Delete(s.model).Error; err != nil {
				return appErr.Wrap(err, appErr.CodeInternal, "delete asset relations failed")
			}
		}
		res := tx.Where(elementPK+" = ?", id).Delete(&models.AssetElement{})
		if res.Error != nil {
			return appErr.Wrap(res.Error, appErr.CodeInternal, "delete asset failed")
		}
		if res.RowsAffected == 0 {
			return appErr.ElementNotFound(fmt.Sprint(id))
		}
		return nil
	})
}

func upsertExt(db *gorm.DB, id uint32, keytag, value string, readOnly bool) error {
	row := models.ExtAttribute{Keytag: keytag, Value: value, ElementID: id, ReadOnly: readOnly}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "keytag"}, {Name: elementPK}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "read_only"}),
	}).Create(&row).Error
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return appErr.ElementNotFound(fmt.Sprint(id))
		}
		return appErr.Wrap(err, appErr.CodeInternal, "upsert ext attribute failed")
	}
	return nil
}

func writeExt(tx *gorm.DB, id uint32, ext map[string]models.ExtValue) error {
	keys := make([]string, 0, len(ext))
	for k := range ext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := ext[k]
		if v.Value == "" {
			continue
		}
		if err := upsertExt(tx, id, k, v.Value, v.ReadOnly); err != nil {
			return err
		}
	}
	return nil
}

func writeLinks(tx *gorm.DB, destID uint32, links []models.Link) error {
	for _, l := range links {
		var src models.AssetElement
		if err := tx.Where("name = ?", l.Source).First(&src).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appErr.ElementNotFound(l.Source)
			}
			return appErr.Wrap(err, appErr.CodeInternal, "select link source failed")
		}
		linkType := l.LinkType
		if linkType == 0 {
			linkType = models.LinkTypePowerChain
		}
		row := models.AssetLink{
			SrcID:      src.ID,
			SrcOut:     ref(l.SrcOut),
			DestID:     destID,
			DestIn:     ref(l.DestIn),
			LinkTypeID: linkType,
		}
		if err := tx.Create(&row).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "insert link failed")
		}
	}
	return nil
}

func writeGroups(tx *gorm.DB, id uint32, groups []string) error {
	for _, name := range groups {
		var g models.AssetElement
		if err := tx.Where("name = ?", name).First(&g).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appErr.ElementNotFound(name)
			}
			return appErr.Wrap(err, appErr.CodeInternal, "select group failed")
		}
		if g.TypeID != models.TypeGroup {
			return appErr.BadParams("group", name, "an asset of type group")
		}
		rel := models.GroupRelation{GroupID: g.ID, ElementID: id}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rel).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "insert group relation failed")
		}
	}
	return nil
}

func mapWriteError(err error, name string) error {
	if database.IsUniqueViolation(err) {
		return appErr.Newf(appErr.CodeAlreadyExists, "Element '%s' already exists.", name)
	}
	if database.IsForeignKeyViolation(err) {
		return appErr.Wrap(err, appErr.CodeNotFound, "Referenced element not found.")
	}
	return appErr.Wrap(err, appErr.CodeInternal, "write asset failed")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
