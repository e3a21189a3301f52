package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

const prohibitedChars = `_@%;"`

// Ext keys normalized on every write.
var (
	dateKeys    = []string{"installation_date", "maintenance_date", "warranty_end", "maintenance_due"}
	numericKeys = []string{"max_power", ExtUSize, ExtLocation}
	dateLayouts = []string{"02-01-2006", "2006-01-02", "02-Jan-06", "02.01.2006", "02 01 2006", "01/02/2006"}
)

// Duplicate detection keys.
const (
	ExtManufacturer = "manufacturer"
	ExtModel        = "model"
	ExtSerial       = "serial_no"
	ExtIP1          = "ip.1"
)

// CheckIdentifier verifies that value names an existing asset and contains
// none of the characters reserved by the bus and the UI. It returns the id.
func CheckIdentifier(ctx context.Context, repo repository.AssetRepository, param, value string) (uint32, error) {
	if value == "" {
		return 0, appErr.ParamRequired(param)
	}
	if strings.ContainsAny(value, prohibitedChars) {
		return 0, appErr.BadParams(param,
			fmt.Sprintf("value '%s' contains prohibited characters (%s)", value, prohibitedChars),
			"valid identifier")
	}
	e, err := repo.GetByName(ctx, value)
	if err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return 0, appErr.BadParams(param,
				fmt.Sprintf("value '%s' is not valid identifier. Error: %s", value, appErr.Reason(err)),
				"existing identifier")
		}
		return 0, err
	}
	return e.ID, nil
}

// SanitizeDate accepts the date layouts understood by the import and
// returns the date as YYYY-MM-DD.
func SanitizeDate(in string) (string, error) {
	s := strings.TrimSpace(in)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", appErr.New(appErr.CodeBadParams, "Not is ISO date")
}

// SanitizeNumber checks that value is entirely a decimal number.
func SanitizeNumber(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, appErr.BadParams(key, value, "value should be a number")
	}
	return f, nil
}

// NormalizeExt rewrites date attributes to ISO form and rejects
// non-numeric values of numeric attributes.
func NormalizeExt(a *models.Asset) error {
	for _, k := range dateKeys {
		v, ok := a.Ext[k]
		if !ok || v.Value == "" {
			continue
		}
		d, err := SanitizeDate(v.Value)
		if err != nil {
			return appErr.BadParams(k, v.Value, "date in one of the supported formats")
		}
		v.Value = d
		a.Ext[k] = v
	}
	for _, k := range numericKeys {
		v, ok := a.Ext[k]
		if !ok || v.Value == "" {
			continue
		}
		if _, err := SanitizeNumber(k, v.Value); err != nil {
			return err
		}
	}
	return nil
}

// CheckDuplicate rejects a new asset whose manufacturer, model and serial
// number (plus ip.1 when set) match an existing asset.
func CheckDuplicate(ctx context.Context, repo repository.AssetRepository, a *models.Asset) error {
	if !a.HasExt(ExtManufacturer) || !a.HasExt(ExtModel) || !a.HasExt(ExtSerial) {
		return nil
	}
	match := map[string]string{
		ExtManufacturer: a.ExtString(ExtManufacturer),
		ExtModel:        a.ExtString(ExtModel),
		ExtSerial:       a.ExtString(ExtSerial),
	}
	if a.HasExt(ExtIP1) {
		match[ExtIP1] = a.ExtString(ExtIP1)
	}
	ids, err := repo.FindByExt(ctx, match)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id != a.ID {
			return appErr.New(appErr.CodeAlreadyExists, "Asset with the same manufacturer, model and serial number already exists")
		}
	}
	return nil
}

// CheckParent resolves the parent of a and checks that it may contain a.
func CheckParent(ctx context.Context, repo repository.AssetRepository, a *models.Asset) error {
	a.ParentID = 0
	if a.Parent == "" || a.Parent == "0" {
		a.Parent = ""
		return nil
	}
	p, err := repo.GetByName(ctx, a.Parent)
	if err != nil && appErr.IsCode(err, appErr.CodeNotFound) {
		if id, perr := strconv.ParseUint(a.Parent, 10, 32); perr == nil {
			var byID models.AssetElement
			if err = repo.GetByID(ctx, uint32(id), &byID); err == nil {
				p = &byID
			}
		}
	}
	if err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return appErr.BadParams("location", a.Parent, "existing asset name")
		}
		return err
	}
	if p.ID == a.ID && a.ID != 0 {
		return appErr.BadParams("location", a.Parent, "a parent other than the asset itself")
	}
	if !models.CanContain(p.TypeID, a.TypeID()) {
		return appErr.BadParams("location", p.Name,
			fmt.Sprintf("a container able to hold an asset of type %s", a.Type))
	}
	a.ParentID = p.ID
	a.Parent = p.Name
	return nil
}

// CheckPowerLinks validates the incoming power links of a: no self link,
// no cycle, both ends in the same data center and at most maxSources sources.
func CheckPowerLinks(ctx context.Context, repo repository.AssetRepository, a *models.Asset, maxSources int) error {
	sources := a.PowerSources()
	if len(sources) == 0 {
		return nil
	}
	if maxSources > 0 && len(sources) > maxSources {
		return appErr.BadParams("power_source", strconv.Itoa(len(sources)), fmt.Sprintf("at most %d power sources", maxSources))
	}

	links, err := repo.LinksByType(ctx, models.LinkTypePowerChain)
	if err != nil {
		return err
	}
	downstream := map[uint32][]uint32{}
	for _, l := range links {
		if a.ID != 0 && l.DestID == a.ID {
			continue
		}
		downstream[l.SrcID] = append(downstream[l.SrcID], l.DestID)
	}

	ownDC, err := dataCenterOf(ctx, repo, a.ParentID)
	if err != nil {
		return err
	}
	for _, name := range sources {
		if name == a.Iname && a.Iname != "" {
			return appErr.New(appErr.CodeBadParams, "connection loop was detected")
		}
		src, err := repo.GetByName(ctx, name)
		if err != nil {
			return err
		}
		if a.ID != 0 && (src.ID == a.ID || reaches(downstream, a.ID, src.ID)) {
			return appErr.New(appErr.CodeBadParams, "connection loop was detected")
		}
		srcDC, err := dataCenterOf(ctx, repo, src.ID)
		if err != nil {
			return err
		}
		if ownDC != 0 && srcDC != 0 && ownDC != srcDC {
			return appErr.New(appErr.CodeBadParams, "Power source is not in same DC")
		}
	}
	return nil
}

// reaches reports whether to is reachable from from over the edges.
func reaches(edges map[uint32][]uint32, from, to uint32) bool {
	seen := map[uint32]bool{from: true}
	queue := []uint32{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range edges[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// dataCenterOf returns the id of the data center holding id (id itself when
// it is one), or 0.
func dataCenterOf(ctx context.Context, repo repository.AssetRepository, id uint32) (uint32, error) {
	if id == 0 {
		return 0, nil
	}
	sp, err := repo.SuperParent(ctx, id)
	if err != nil {
		return 0, err
	}
	top := sp.TopContainer()
	if top.TypeID != models.TypeDatacenter {
		return 0, nil
	}
	return top.ID, nil
}
