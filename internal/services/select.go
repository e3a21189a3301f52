package services

import (
	"context"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
)

// SelectAssets lists the inames of the assets located in container, or of
// every asset when container is empty. filters are type or subtype names;
// an asset matches when its type or its subtype is listed. Unknown filter
// names match nothing.
func SelectAssets(ctx context.Context, repo repository.AssetRepository, container string, filters []string) ([]string, error) {
	var f repository.AssetFilter
	if container != "" {
		e, err := repo.GetByName(ctx, container)
		if err != nil {
			return nil, err
		}
		f.ContainerID = e.ID
	}

	types := map[uint16]bool{}
	subtypes := map[uint16]bool{}
	for _, name := range filters {
		if name == "" {
			continue
		}
		if id := models.TypeID(name); id != models.TypeUnknown {
			types[id] = true
		} else if id := models.SubtypeID(name); id != models.SubtypeUnknown {
			subtypes[id] = true
		}
	}

	rows, err := repo.SuperParents(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if len(filters) > 0 && !types[r.TypeID] && !subtypes[r.SubtypeID] {
			continue
		}
		out = append(out, r.Name)
	}
	return out, nil
}
