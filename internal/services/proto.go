package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

// Aux keys of the asset messages.
const (
	AuxType        = "type"
	AuxSubtype     = "subtype"
	AuxStatus      = "status"
	AuxPriority    = "priority"
	AuxParent      = "parent"
	AuxParentName  = "parent_name."
	AuxExtReadOnly = "ext_read_only"
	AuxUPS         = "ups"

	extPowerLink = "power_link."
	extGroup     = "group"
)

// FromProto decodes an asset message into an Asset. Every ext attribute is
// read-only when readOnly is set; otherwise only those listed in the
// ext_read_only aux entry are. Absent status, subtype and priority stay
// zero so that an update keeps the stored values.
func FromProto(m *ftyproto.Message, readOnly bool) (*models.Asset, error) {
	if m == nil || m.ID != ftyproto.AssetID {
		return nil, appErr.BadRequestDocument("fty-proto asset")
	}
	a := models.NewAsset()
	a.Iname = m.Name
	a.Status, a.Subtype, a.Priority = "", "", 0

	if t := m.AuxString(AuxType, ""); t != "" {
		id := models.TypeID(t)
		if id == models.TypeUnknown {
			return nil, appErr.BadParams(AuxType, t, "one of "+strings.Join(sortedNames(models.TypeNames()), ", "))
		}
		a.Type = models.TypeName(id)
	}
	if st := m.AuxString(AuxSubtype, ""); st != "" {
		id := models.SubtypeID(st)
		if id == models.SubtypeUnknown {
			return nil, appErr.BadParams(AuxSubtype, st, "one of "+strings.Join(sortedNames(models.SubtypeNames()), ", "))
		}
		a.Subtype = models.SubtypeName(id)
	}
	if s := m.AuxString(AuxStatus, ""); s != "" {
		if !models.IsValidStatus(s) {
			return nil, appErr.BadParams(AuxStatus, s, models.StatusActive+" or "+models.StatusNonactive)
		}
		a.Status = s
	}
	if p := m.AuxString(AuxPriority, ""); p != "" {
		prio, err := ParsePriority(p)
		if err != nil {
			return nil, err
		}
		a.Priority = prio
	}
	a.Parent = m.AuxString(AuxParentName+"1", m.AuxString(AuxParent, ""))

	roKeys := map[string]bool{}
	for _, k := range strings.Split(m.AuxString(AuxExtReadOnly, ""), ",") {
		if k = strings.TrimSpace(k); k != "" {
			roKeys[k] = true
		}
	}

	keys := make([]string, 0, len(m.Ext))
	for k := range m.Ext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := m.Ext[k]
		switch {
		case strings.HasPrefix(k, extPowerLink):
			src := strings.TrimPrefix(k, extPowerLink)
			out, in, _ := strings.Cut(v, "/")
			a.Linked = append(a.Linked, models.Link{
				Source:   src,
				LinkType: models.LinkTypePowerChain,
				SrcOut:   out,
				DestIn:   in,
			})
		case k == extGroup:
			for _, g := range strings.Split(v, "/") {
				if g = strings.TrimSpace(g); g != "" {
					a.Groups = append(a.Groups, g)
				}
			}
		case strings.HasPrefix(k, extGroup+"."):
			if v != "" {
				a.Groups = append(a.Groups, v)
			}
		default:
			a.SetExt(k, v, readOnly || roKeys[k])
		}
	}
	return a, nil
}

// ParsePriority accepts 1..5, optionally prefixed with P.
func ParsePriority(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "P"))
	if err != nil || n < 1 || n > 5 {
		return 0, appErr.BadParams(AuxPriority, s, "value between 1 and 5")
	}
	return n, nil
}

// EventFromAsset renders the canonical asset message. sp gives the parent
// chain; ups lists the active UPSes of a data center.
func EventFromAsset(a *models.Asset, sp *models.SuperParent, ups []string, operation string) *ftyproto.Message {
	aux := map[string]string{
		AuxPriority: strconv.Itoa(a.Priority),
		AuxType:     a.Type,
		AuxSubtype:  a.Subtype,
		AuxParent:   strconv.FormatUint(uint64(a.ParentID), 10),
		AuxStatus:   a.Status,
	}
	if sp != nil {
		for i, anc := range sp.Ancestors() {
			if anc.Name != "" {
				aux[fmt.Sprintf("%s%d", AuxParentName, i+1)] = anc.Name
			}
		}
	}
	if a.TypeID() == models.TypeDatacenter {
		for i, name := range ups {
			aux[fmt.Sprintf("%s%d", AuxUPS, i)] = name
		}
	}

	ext := make(map[string]string, len(a.Ext))
	var ro []string
	for _, k := range a.ExtKeys() {
		v := a.Ext[k]
		ext[k] = v.Value
		if v.ReadOnly {
			ro = append(ro, k)
		}
	}
	if len(ro) > 0 {
		aux[AuxExtReadOnly] = strings.Join(ro, ",")
	}
	return ftyproto.NewAsset(a.Iname, operation, aux, ext)
}

// ToProto renders an asset for a manipulation request, links and groups
// included in the ext hash.
func ToProto(a *models.Asset, operation string) *ftyproto.Message {
	m := EventFromAsset(a, nil, nil, operation)
	if a.Parent != "" {
		m.Aux[AuxParentName+"1"] = a.Parent
	}
	for _, l := range a.Linked {
		if l.LinkType == models.LinkTypePowerChain {
			m.Ext[extPowerLink+l.Source] = l.SrcOut + "/" + l.DestIn
		}
	}
	if len(a.Groups) > 0 {
		m.Ext[extGroup] = strings.Join(a.Groups, "/")
	}
	return m
}

func sortedNames(ns []string) []string {
	sort.Strings(ns)
	return ns
}
