package models

import (
	"time"

	"gorm.io/datatypes"
)

// MaxParentLevels is the depth materialized by the super-parent view.
const MaxParentLevels = 10

// AssetElement is one row of t_bios_asset_element.
type AssetElement struct {
	ID        uint32  `gorm:"column:id_asset_element;primaryKey;autoIncrement" json:"id"`
	Name      string  `gorm:"column:name;type:varchar(50);uniqueIndex;not null" json:"name"`
	TypeID    uint16  `gorm:"column:id_type;not null;index" json:"id_type"`
	SubtypeID uint16  `gorm:"column:id_subtype;not null;default:11" json:"id_subtype"`
	ParentID  *uint32 `gorm:"column:id_parent;index" json:"id_parent,omitempty"`
	Status    string  `gorm:"column:status;type:varchar(9);not null;default:nonactive" json:"status"`
	Priority  int     `gorm:"column:priority;not null;default:5" json:"priority"`
	AssetTag  string  `gorm:"column:asset_tag;type:varchar(50)" json:"asset_tag"`
}

func (AssetElement) TableName() string { return "t_bios_asset_element" }

// ExtAttribute is one row of t_bios_asset_ext_attributes.
type ExtAttribute struct {
	ID        uint32 `gorm:"column:id_asset_ext_attribute;primaryKey;autoIncrement" json:"id"`
	Keytag    string `gorm:"column:keytag;type:varchar(40);not null;uniqueIndex:uidx_ext_keytag_element" json:"keytag"`
	Value     string `gorm:"column:value;type:varchar(255);not null" json:"value"`
	ElementID uint32 `gorm:"column:id_asset_element;not null;uniqueIndex:uidx_ext_keytag_element;index" json:"id_asset_element"`
	ReadOnly  bool   `gorm:"column:read_only;not null;default:false" json:"read_only"`
}

func (ExtAttribute) TableName() string { return "t_bios_asset_ext_attributes" }

// AssetLink is one row of t_bios_asset_link.
type AssetLink struct {
	ID         uint32  `gorm:"column:id_link;primaryKey;autoIncrement" json:"id"`
	SrcID      uint32  `gorm:"column:id_asset_device_src;not null;index" json:"id_asset_device_src"`
	SrcOut     *string `gorm:"column:src_out;type:varchar(16)" json:"src_out,omitempty"`
	DestID     uint32  `gorm:"column:id_asset_device_dest;not null;index" json:"id_asset_device_dest"`
	DestIn     *string `gorm:"column:dest_in;type:varchar(16)" json:"dest_in,omitempty"`
	LinkTypeID uint16  `gorm:"column:id_asset_link_type;not null;default:1" json:"id_asset_link_type"`
}

func (AssetLink) TableName() string { return "t_bios_asset_link" }

// GroupRelation is one row of t_bios_asset_group_relation.
type GroupRelation struct {
	ID        uint32 `gorm:"column:id_asset_group_relation;primaryKey;autoIncrement" json:"id"`
	GroupID   uint32 `gorm:"column:id_asset_group;not null;uniqueIndex:uidx_group_element" json:"id_asset_group"`
	ElementID uint32 `gorm:"column:id_asset_element;not null;uniqueIndex:uidx_group_element;index" json:"id_asset_element"`
}

func (GroupRelation) TableName() string { return "t_bios_asset_group_relation" }

// ElementType, DeviceType and LinkType are the seeded lookup tables.
type ElementType struct {
	ID   uint16 `gorm:"column:id_asset_element_type;primaryKey;autoIncrement:false"`
	Name string `gorm:"column:name;type:varchar(50);uniqueIndex;not null"`
}

func (ElementType) TableName() string { return "t_bios_asset_element_type" }

type DeviceType struct {
	ID   uint16 `gorm:"column:id_asset_device_type;primaryKey;autoIncrement:false"`
	Name string `gorm:"column:name;type:varchar(50);uniqueIndex;not null"`
}

func (DeviceType) TableName() string { return "t_bios_asset_device_type" }

type LinkType struct {
	ID   uint16 `gorm:"column:id_asset_link_type;primaryKey;autoIncrement:false"`
	Name string `gorm:"column:name;type:varchar(50);uniqueIndex;not null"`
}

func (LinkType) TableName() string { return "t_bios_asset_link_type" }

// AssetEvent records every notification emitted for an asset.
type AssetEvent struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Iname     string         `gorm:"type:varchar(50);index;not null" json:"iname"`
	Kind      string         `gorm:"type:varchar(16);index;not null" json:"kind"`
	Payload   datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func (AssetEvent) TableName() string { return "asset_events" }

// SuperParent is one row of v_bios_asset_element_super_parent.
type SuperParent struct {
	ID          uint32 `gorm:"column:id_asset_element"`
	Name        string `gorm:"column:name"`
	TypeID      uint16 `gorm:"column:id_type"`
	SubtypeID   uint16 `gorm:"column:id_subtype"`
	TypeName    string `gorm:"column:type_name"`
	SubtypeName string `gorm:"column:subtype_name"`
	Status      string `gorm:"column:status"`
	Priority    int    `gorm:"column:priority"`
	AssetTag    string `gorm:"column:asset_tag"`

	IDParent1  *uint32 `gorm:"column:id_parent1"`
	IDParent2  *uint32 `gorm:"column:id_parent2"`
	IDParent3  *uint32 `gorm:"column:id_parent3"`
	IDParent4  *uint32 `gorm:"column:id_parent4"`
	IDParent5  *uint32 `gorm:"column:id_parent5"`
	IDParent6  *uint32 `gorm:"column:id_parent6"`
	IDParent7  *uint32 `gorm:"column:id_parent7"`
	IDParent8  *uint32 `gorm:"column:id_parent8"`
	IDParent9  *uint32 `gorm:"column:id_parent9"`
	IDParent10 *uint32 `gorm:"column:id_parent10"`

	NameParent1  *string `gorm:"column:name_parent1"`
	NameParent2  *string `gorm:"column:name_parent2"`
	NameParent3  *string `gorm:"column:name_parent3"`
	NameParent4  *string `gorm:"column:name_parent4"`
	NameParent5  *string `gorm:"column:name_parent5"`
	NameParent6  *string `gorm:"column:name_parent6"`
	NameParent7  *string `gorm:"column:name_parent7"`
	NameParent8  *string `gorm:"column:name_parent8"`
	NameParent9  *string `gorm:"column:name_parent9"`
	NameParent10 *string `gorm:"column:name_parent10"`

	TypeParent1  *uint16 `gorm:"column:id_type_parent1"`
	TypeParent2  *uint16 `gorm:"column:id_type_parent2"`
	TypeParent3  *uint16 `gorm:"column:id_type_parent3"`
	TypeParent4  *uint16 `gorm:"column:id_type_parent4"`
	TypeParent5  *uint16 `gorm:"column:id_type_parent5"`
	TypeParent6  *uint16 `gorm:"column:id_type_parent6"`
	TypeParent7  *uint16 `gorm:"column:id_type_parent7"`
	TypeParent8  *uint16 `gorm:"column:id_type_parent8"`
	TypeParent9  *uint16 `gorm:"column:id_type_parent9"`
	TypeParent10 *uint16 `gorm:"column:id_type_parent10"`
}

func (SuperParent) TableName() string { return "v_bios_asset_element_super_parent" }

// Ancestor is one resolved level of a super-parent chain.
type Ancestor struct {
	ID     uint32
	Name   string
	TypeID uint16
}

// Ancestors returns the parent chain, nearest first, stopping at the first gap.
func (s *SuperParent) Ancestors() []Ancestor {
	ids := [MaxParentLevels]*uint32{s.IDParent1, s.IDParent2, s.IDParent3, s.IDParent4, s.IDParent5,
		s.IDParent6, s.IDParent7, s.IDParent8, s.IDParent9, s.IDParent10}
	names := [MaxParentLevels]*string{s.NameParent1, s.NameParent2, s.NameParent3, s.NameParent4, s.NameParent5,
		s.NameParent6, s.NameParent7, s.NameParent8, s.NameParent9, s.NameParent10}
	types := [MaxParentLevels]*uint16{s.TypeParent1, s.TypeParent2, s.TypeParent3, s.TypeParent4, s.TypeParent5,
		s.TypeParent6, s.TypeParent7, s.TypeParent8, s.TypeParent9, s.TypeParent10}

	out := make([]Ancestor, 0, MaxParentLevels)
	for i := 0; i < MaxParentLevels; i++ {
		if ids[i] == nil {
			break
		}
		a := Ancestor{ID: *ids[i]}
		if names[i] != nil {
			a.Name = *names[i]
		}
		if types[i] != nil {
			a.TypeID = *types[i]
		}
		out = append(out, a)
	}
	return out
}

// TopContainer returns the outermost ancestor, or the element itself when it has none.
func (s *SuperParent) TopContainer() Ancestor {
	chain := s.Ancestors()
	if len(chain) == 0 {
		return Ancestor{ID: s.ID, Name: s.Name, TypeID: s.TypeID}
	}
	return chain[len(chain)-1]
}

// ElementExt is one row of v_web_asset_element_ext.
type ElementExt struct {
	ID        uint32 `gorm:"column:id"`
	Name      string `gorm:"column:name"`
	ExtName   string `gorm:"column:ext_name"`
	TypeID    uint16 `gorm:"column:id_type"`
	SubtypeID uint16 `gorm:"column:id_subtype"`
}

func (ElementExt) TableName() string { return "v_web_asset_element_ext" }
