package models

import (
	"sort"
	"strings"
)

// Create modes recorded in the create_mode ext attribute.
const (
	CreateModeOneAsset = 1
	CreateModeCSV      = 2
)

// ExtValue is one extended attribute of an Asset.
type ExtValue struct {
	Value    string `json:"value"`
	ReadOnly bool   `json:"readOnly"`
}

// Link is an incoming link of an Asset: Source feeds the asset.
type Link struct {
	Source   string `json:"source"`
	LinkType uint16 `json:"link_type"`
	SrcOut   string `json:"src_out,omitempty"`
	DestIn   string `json:"dest_in,omitempty"`
}

// Asset is the full view of one asset used by every write path and by the
// JSON notifications.
type Asset struct {
	ID       uint32              `json:"-"`
	Iname    string              `json:"name"`
	Status   string              `json:"status"`
	Type     string              `json:"type"`
	Subtype  string              `json:"sub_type"`
	Priority int                 `json:"priority"`
	Parent   string              `json:"parent"`
	ParentID uint32              `json:"-"`
	AssetTag string              `json:"asset_tag,omitempty"`
	Linked   []Link              `json:"linked"`
	Groups   []string            `json:"groups,omitempty"`
	Ext      map[string]ExtValue `json:"ext"`
}

// NewAsset returns an empty nonactive asset with default priority.
func NewAsset() *Asset {
	return &Asset{
		Status:   StatusNonactive,
		Subtype:  subtypeNames[SubtypeNA],
		Priority: 5,
		Ext:      map[string]ExtValue{},
	}
}

func (a *Asset) TypeID() uint16    { return TypeID(a.Type) }
func (a *Asset) SubtypeID() uint16 { return SubtypeID(a.Subtype) }

// ExtString returns the value of an ext attribute, or "".
func (a *Asset) ExtString(key string) string {
	if a.Ext == nil {
		return ""
	}
	return a.Ext[key].Value
}

// HasExt reports whether the ext attribute is set to a non-empty value.
func (a *Asset) HasExt(key string) bool {
	return a.ExtString(key) != ""
}

// SetExt sets an ext attribute.
func (a *Asset) SetExt(key, value string, readOnly bool) {
	if a.Ext == nil {
		a.Ext = map[string]ExtValue{}
	}
	a.Ext[key] = ExtValue{Value: value, ReadOnly: readOnly}
}

// ExternalName is the human visible name held in the "name" ext attribute.
func (a *Asset) ExternalName() string { return a.ExtString("name") }

// IsActive reports whether the asset status is active.
func (a *Asset) IsActive() bool { return a.Status == StatusActive }

// Subject renders the canonical stream subject type.subtype@iname.
func (a *Asset) Subject() string {
	return Subject(a.Type, a.Subtype, a.Iname)
}

// Subject renders type.subtype@iname, with "unknown" for empty parts.
func Subject(typ, subtype, iname string) string {
	if typ == "" {
		typ = "unknown"
	}
	if subtype == "" {
		subtype = "unknown"
	}
	return typ + "." + subtype + "@" + iname
}

// PowerSources returns the inames feeding this asset over power links.
func (a *Asset) PowerSources() []string {
	var out []string
	for _, l := range a.Linked {
		if l.LinkType == LinkTypePowerChain {
			out = append(out, l.Source)
		}
	}
	return out
}

// Clone returns a deep copy.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	c.Linked = append([]Link(nil), a.Linked...)
	c.Groups = append([]string(nil), a.Groups...)
	c.Ext = make(map[string]ExtValue, len(a.Ext))
	for k, v := range a.Ext {
		c.Ext[k] = v
	}
	return &c
}

// ExtKeys returns the ext keys in lexical order.
func (a *Asset) ExtKeys() []string {
	keys := make([]string, 0, len(a.Ext))
	for k := range a.Ext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Element returns the row form of the asset.
func (a *Asset) Element() *AssetElement {
	e := &AssetElement{
		ID:        a.ID,
		Name:      a.Iname,
		TypeID:    a.TypeID(),
		SubtypeID: a.SubtypeID(),
		Status:    a.Status,
		Priority:  a.Priority,
		AssetTag:  a.AssetTag,
	}
	if e.SubtypeID == SubtypeUnknown {
		e.SubtypeID = SubtypeNA
	}
	if a.ParentID != 0 {
		pid := a.ParentID
		e.ParentID = &pid
	}
	return e
}

// IsValidStatus reports whether s is one of the two asset statuses.
func IsValidStatus(s string) bool {
	return s == StatusActive || s == StatusNonactive
}

// InamePrefix returns the prefix used when generating an iname for a new asset:
// the subtype for devices, the type otherwise.
func InamePrefix(typeID, subtypeID uint16) string {
	if typeID == TypeDevice && subtypeID != SubtypeNA && subtypeID != SubtypeUnknown {
		return strings.ToLower(SubtypeName(subtypeID))
	}
	return TypeName(typeID)
}
