package services

import (
	"context"
	"strconv"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

// Ext keys used by rack placement.
const (
	ExtUSize    = "u_size"
	ExtLocation = "location_u_pos"
)

// CheckPlacement verifies that a, placed at location_u_pos with u_size units,
// fits inside its parent and does not overlap any sibling. Assets without a
// parent or without a position are not checked.
func CheckPlacement(ctx context.Context, repo repository.AssetRepository, a *models.Asset) error {
	if a.ParentID == 0 || !a.HasExt(ExtLocation) {
		return nil
	}
	loc := atou(a.ExtString(ExtLocation))
	size := atou(a.ExtString(ExtUSize))
	if loc == 0 {
		return appErr.New(appErr.CodeBadParams, "Position is wrong, should be greater than 0")
	}
	if size == 0 {
		return appErr.New(appErr.CodeBadParams, "Size is wrong, should be greater than 0")
	}

	ext, err := repo.Ext(ctx, a.ParentID)
	if err != nil {
		return err
	}
	parentSize := atou(ext[a.ParentID][ExtUSize].Value)
	if parentSize == 0 {
		return appErr.New(appErr.CodeBadParams, "Size is not set")
	}

	children, err := repo.Children(ctx, a.ParentID)
	if err != nil {
		return err
	}
	ids := make([]uint32, 0, len(children))
	for _, c := range children {
		if c.ID != a.ID {
			ids = append(ids, c.ID)
		}
	}
	siblings, err := repo.Ext(ctx, ids...)
	if err != nil {
		return err
	}

	used := make([]bool, parentSize)
	for _, id := range ids {
		attrs := siblings[id]
		cLoc := atou(attrs[ExtLocation].Value)
		cSize := atou(attrs[ExtUSize].Value)
		if cLoc == 0 || cSize == 0 {
			continue
		}
		for i := cLoc - 1; i < cLoc-1+cSize && i < parentSize; i++ {
			used[i] = true
		}
	}
	return placeInto(used, loc, size)
}

func placeInto(used []bool, loc, size uint32) error {
	for i := loc - 1; i < loc+size-1; i++ {
		if i >= uint32(len(used)) {
			return appErr.New(appErr.CodeBadParams, "Asset is out bounds")
		}
		if used[i] {
			return appErr.New(appErr.CodeBadParams, "Asset place is occupied")
		}
	}
	return nil
}

func atou(s string) uint32 {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil && f > 0 {
			return uint32(f)
		}
		return 0
	}
	return uint32(n)
}
