package services

import (
	"context"
	"regexp"
	"strconv"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
)

// ExtName is the ext attribute holding the external (user visible) name.
const ExtName = "name"

var suffixRe = regexp.MustCompile(`~(\d+)$`)

// NormName fits name into maxLen runes. A name that had to be cut is made
// unique among the other assets (id excluded) with a ~N suffix, N being one
// more than the highest suffix already used for the same prefix.
func NormName(ctx context.Context, repo repository.AssetRepository, name string, maxLen int, id uint32) (string, error) {
	r := []rune(name)
	if len(r) < maxLen || maxLen < 4 {
		return name, nil
	}
	// a ~N suffix of d digits keeps maxLen-1-d runes of the name, so the
	// lookup prefix shrinks as the suffixes grow
	prefixLen := maxLen - 3
	for {
		existing, err := repo.ExtValuesWithPrefix(ctx, ExtName, string(r[:prefixLen]), id)
		if err != nil {
			return "", err
		}
		out := suffixedName(r, maxLen, existing)
		m := suffixRe.FindStringSubmatch(out)
		if m == nil {
			return out, nil
		}
		keep := maxLen - 1 - len(m[1])
		if keep >= prefixLen || keep <= 0 {
			return out, nil
		}
		prefixLen = keep
	}
}

func suffixedName(orig []rune, maxLen int, existing []string) string {
	name := string(orig[:maxLen])

	num := -1
	for _, v := range existing {
		if v == name {
			if num == -1 {
				num = 0
			}
			continue
		}
		m := suffixRe.FindStringSubmatch(v)
		if m == nil {
			continue
		}
		keep := maxLen - 1 - len(m[1])
		if keep < 0 || v != string(orig[:keep])+"~"+m[1] {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > num {
			num = n
		}
	}
	if num == -1 {
		return name
	}
	suffix := strconv.Itoa(num + 1)
	keep := maxLen - 1 - len(suffix)
	if keep < 0 {
		keep = 0
	}
	return string(orig[:keep]) + "~" + suffix
}
