// Package repotest provides an in-memory AssetRepository for tests of the
// layers above the database.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

// Memory mirrors the behavior of the gorm repository over plain maps.
type Memory struct {
	mu       sync.Mutex
	nextID   uint32
	nextLink uint32
	elements map[uint32]models.AssetElement
	ext      map[uint32]map[string]models.ExtValue
	links    []models.AssetLink
	groups   map[uint32]map[uint32]bool // element -> groups

	// FailNext makes the next write return this error once.
	FailNext error
}

var _ repository.AssetRepository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		elements: map[uint32]models.AssetElement{},
		ext:      map[uint32]map[string]models.ExtValue{},
		groups:   map[uint32]map[uint32]bool{},
	}
}

func (m *Memory) failure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

func (m *Memory) Create(_ context.Context, obj *models.AssetElement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return err
	}
	return m.insertElement(obj)
}

func (m *Memory) GetByID(_ context.Context, id any, dest *models.AssetElement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := toID(id)
	e, found := m.elements[key]
	if !ok || !found {
		return appErr.ElementNotFound(fmt.Sprint(id))
	}
	*dest = e
	return nil
}

func (m *Memory) Update(_ context.Context, obj *models.AssetElement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.elements[obj.ID]; !ok {
		return appErr.ElementNotFound(obj.Name)
	}
	m.elements[obj.ID] = *obj
	return nil
}

func (m *Memory) Delete(ctx context.Context, id any) error {
	key, ok := toID(id)
	if !ok {
		return appErr.ElementNotFound(fmt.Sprint(id))
	}
	return m.Remove(ctx, key)
}

func (m *Memory) GetByName(_ context.Context, name string) (*models.AssetElement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byName(name)
	if !ok {
		return nil, appErr.ElementNotFound(name)
	}
	return &e, nil
}

func (m *Memory) ElementsByIDs(_ context.Context, ids []uint32) (map[uint32]models.AssetElement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint32]models.AssetElement, len(ids))
	for _, id := range ids {
		if e, ok := m.elements[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (m *Memory) LoadAsset(_ context.Context, name string) (*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byName(name)
	if !ok {
		return nil, appErr.ElementNotFound(name)
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
		a.ParentID = *e.ParentID
		a.Parent = m.elements[*e.ParentID].Name
	}
	for k, v := range m.ext[e.ID] {
		a.Ext[k] = v
	}
	for _, l := range m.links {
		if l.DestID == e.ID {
			a.Linked = append(a.Linked, models.Link{
				Source:   m.elements[l.SrcID].Name,
				LinkType: l.LinkTypeID,
				SrcOut:   deref(l.SrcOut),
				DestIn:   deref(l.DestIn),
			})
		}
	}
	for gid := range m.groups[e.ID] {
		a.Groups = append(a.Groups, m.elements[gid].Name)
	}
	sort.Strings(a.Groups)
	return a, nil
}

func (m *Memory) SuperParent(_ context.Context, id uint32) (*models.SuperParent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.elements[id]
	if !ok {
		return nil, appErr.ElementNotFound(fmt.Sprint(id))
	}
	sp := m.superParent(e)
	return &sp, nil
}

func (m *Memory) SuperParents(_ context.Context, f repository.AssetFilter) ([]models.SuperParent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SuperParent
	for _, id := range m.sortedIDs() {
		e := m.elements[id]
		if len(f.TypeIDs) > 0 && !containsU16(f.TypeIDs, e.TypeID) {
			continue
		}
		if len(f.SubtypeIDs) > 0 && !containsU16(f.SubtypeIDs, e.SubtypeID) {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		sp := m.superParent(e)
		if f.ContainerID != 0 {
			inside := false
			for _, a := range sp.Ancestors() {
				if a.ID == f.ContainerID {
					inside = true
					break
				}
			}
			if !inside {
				continue
			}
		}
		out = append(out, sp)
	}
	return out, nil
}

func (m *Memory) Children(_ context.Context, parentID uint32) ([]models.AssetElement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AssetElement
	for _, id := range m.sortedIDs() {
		e := m.elements[id]
		if e.ParentID != nil && *e.ParentID == parentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) CountChildren(ctx context.Context, id uint32) (int64, error) {
	c, err := m.Children(ctx, id)
	return int64(len(c)), err
}

func (m *Memory) CountGroupMembers(_ context.Context, id uint32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, gs := range m.groups {
		if gs[id] {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GroupMembers(_ context.Context, id uint32) ([]models.AssetElement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AssetElement
	for _, eid := range m.sortedIDs() {
		if m.groups[eid][id] {
			out = append(out, m.elements[eid])
		}
	}
	return out, nil
}

func (m *Memory) Ename(_ context.Context, iname string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byName(iname)
	if !ok {
		return "", appErr.ElementNotFound(iname)
	}
	return m.ext[e.ID]["name"].Value, nil
}

func (m *Memory) Ext(_ context.Context, ids ...uint32) (map[uint32]map[string]models.ExtValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint32]map[string]models.ExtValue, len(ids))
	for _, id := range ids {
		src, ok := m.ext[id]
		if !ok || len(src) == 0 {
			continue
		}
		cp := make(map[string]models.ExtValue, len(src))
		for k, v := range src {
			cp[k] = v
		}
		out[id] = cp
	}
	return out, nil
}

func (m *Memory) ExtValuesWithPrefix(_ context.Context, keytag, prefix string, excludeID uint32) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, attrs := range m.ext {
		if id == excludeID {
			continue
		}
		if v, ok := attrs[keytag]; ok && strings.HasPrefix(v.Value, prefix) {
			out = append(out, v.Value)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) FindByExt(_ context.Context, match map[string]string) ([]uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(match) == 0 {
		return nil, nil
	}
	var out []uint32
	for _, id := range m.sortedIDs() {
		attrs := m.ext[id]
		all := true
		for k, v := range match {
			if attrs[k].Value != v || attrs[k].Value == "" {
				all = false
				break
			}
		}
		if all {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *Memory) CountKeytag(_ context.Context, id uint32, keytag string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ext[id][keytag]; ok {
		return 1, nil
	}
	return 0, nil
}

func (m *Memory) UpsertExt(_ context.Context, id uint32, keytag, value string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return err
	}
	if _, ok := m.elements[id]; !ok {
		return appErr.ElementNotFound(fmt.Sprint(id))
	}
	m.setExt(id, keytag, models.ExtValue{Value: value, ReadOnly: readOnly})
	return nil
}

func (m *Memory) LinksByType(_ context.Context, linkType uint16) ([]models.AssetLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AssetLink
	for _, l := range m.links {
		if l.LinkTypeID == linkType {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Memory) IncomingLinks(_ context.Context, id uint32) ([]models.AssetLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AssetLink
	for _, l := range m.links {
		if l.DestID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Memory) Insert(_ context.Context, a *models.Asset) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return 0, err
	}
	snap := m.snapshot()
	e := a.Element()
	e.ID = 0
	if err := m.insertElement(e); err != nil {
		return 0, err
	}
	if err := m.writeRelations(e.ID, a); err != nil {
		m.restore(snap)
		return 0, err
	}
	a.ID = e.ID
	a.Iname = e.Name
	return e.ID, nil
}

func (m *Memory) Save(_ context.Context, a *models.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return err
	}
	if _, ok := m.elements[a.ID]; !ok {
		return appErr.ElementNotFound(a.Iname)
	}
	if other, ok := m.byName(a.Iname); ok && other.ID != a.ID {
		return appErr.Newf(appErr.CodeAlreadyExists, "Element '%s' already exists.", a.Iname)
	}
	snap := m.snapshot()
	m.elements[a.ID] = *a.Element()
	for k, v := range m.ext[a.ID] {
		if !v.ReadOnly {
			delete(m.ext[a.ID], k)
		}
	}
	kept := m.links[:0]
	for _, l := range m.links {
		if l.DestID != a.ID {
			kept = append(kept, l)
		}
	}
	m.links = kept
	delete(m.groups, a.ID)
	if err := m.writeRelations(a.ID, a); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *Memory) SetStatus(_ context.Context, id uint32, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.elements[id]
	if !ok {
		return appErr.ElementNotFound(fmt.Sprint(id))
	}
	e.Status = status
	m.elements[id] = e
	return nil
}

func (m *Memory) Remove(_ context.Context, id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return err
	}
	if _, ok := m.elements[id]; !ok {
		return appErr.ElementNotFound(fmt.Sprint(id))
	}
	delete(m.elements, id)
	delete(m.ext, id)
	delete(m.groups, id)
	for _, gs := range m.groups {
		delete(gs, id)
	}
	kept := m.links[:0]
	for _, l := range m.links {
		if l.SrcID != id && l.DestID != id {
			kept = append(kept, l)
		}
	}
	m.links = kept
	return nil
}

// Len returns the number of stored assets.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.elements)
}

func (m *Memory) insertElement(e *models.AssetElement) error {
	if e.Name != "" {
		if _, dup := m.byName(e.Name); dup {
			return appErr.Newf(appErr.CodeAlreadyExists, "Element '%s' already exists.", e.Name)
		}
	}
	if e.ParentID != nil {
		if _, ok := m.elements[*e.ParentID]; !ok {
			return appErr.ElementNotFound(fmt.Sprint(*e.ParentID))
		}
	}
	m.nextID++
	e.ID = m.nextID
	if e.Name == "" {
		e.Name = fmt.Sprintf("%s-%d", models.InamePrefix(e.TypeID, e.SubtypeID), e.ID)
	}
	if e.Status == "" {
		e.Status = models.StatusNonactive
	}
	if e.Priority == 0 {
		e.Priority = 5
	}
	if e.SubtypeID == models.SubtypeUnknown {
		e.SubtypeID = models.SubtypeNA
	}
	m.elements[e.ID] = *e
	return nil
}

func (m *Memory) writeRelations(id uint32, a *models.Asset) error {
	for k, v := range a.Ext {
		if v.Value == "" {
			continue
		}
		m.setExt(id, k, v)
	}
	for _, l := range a.Linked {
		src, ok := m.byName(l.Source)
		if !ok {
			return appErr.ElementNotFound(l.Source)
		}
		lt := l.LinkType
		if lt == 0 {
			lt = models.LinkTypePowerChain
		}
		m.nextLink++
		m.links = append(m.links, models.AssetLink{
			ID: m.nextLink, SrcID: src.ID, DestID: id, LinkTypeID: lt,
			SrcOut: ref(l.SrcOut), DestIn: ref(l.DestIn),
		})
	}
	for _, name := range a.Groups {
		g, ok := m.byName(name)
		if !ok {
			return appErr.ElementNotFound(name)
		}
		if g.TypeID != models.TypeGroup {
			return appErr.BadParams("group", name, "an asset of type group")
		}
		if m.groups[id] == nil {
			m.groups[id] = map[uint32]bool{}
		}
		m.groups[id][g.ID] = true
	}
	return nil
}

func (m *Memory) setExt(id uint32, key string, v models.ExtValue) {
	if m.ext[id] == nil {
		m.ext[id] = map[string]models.ExtValue{}
	}
	m.ext[id][key] = v
}

func (m *Memory) superParent(e models.AssetElement) models.SuperParent {
	sp := models.SuperParent{
		ID: e.ID, Name: e.Name, TypeID: e.TypeID, SubtypeID: e.SubtypeID,
		TypeName: models.TypeName(e.TypeID), SubtypeName: models.SubtypeName(e.SubtypeID),
		Status: e.Status, Priority: e.Priority, AssetTag: e.AssetTag,
	}
	ids := []**uint32{&sp.IDParent1, &sp.IDParent2, &sp.IDParent3, &sp.IDParent4, &sp.IDParent5,
		&sp.IDParent6, &sp.IDParent7, &sp.IDParent8, &sp.IDParent9, &sp.IDParent10}
	names := []**string{&sp.NameParent1, &sp.NameParent2, &sp.NameParent3, &sp.NameParent4, &sp.NameParent5,
		&sp.NameParent6, &sp.NameParent7, &sp.NameParent8, &sp.NameParent9, &sp.NameParent10}
	types := []**uint16{&sp.TypeParent1, &sp.TypeParent2, &sp.TypeParent3, &sp.TypeParent4, &sp.TypeParent5,
		&sp.TypeParent6, &sp.TypeParent7, &sp.TypeParent8, &sp.TypeParent9, &sp.TypeParent10}

	cur := e
	for i := 0; i < models.MaxParentLevels && cur.ParentID != nil; i++ {
		p, ok := m.elements[*cur.ParentID]
		if !ok {
			break
		}
		id, name, typ := p.ID, p.Name, p.TypeID
		*ids[i], *names[i], *types[i] = &id, &name, &typ
		cur = p
	}
	return sp
}

func (m *Memory) byName(name string) (models.AssetElement, bool) {
	for _, e := range m.elements {
		if e.Name == name {
			return e, true
		}
	}
	return models.AssetElement{}, false
}

func (m *Memory) sortedIDs() []uint32 {
	ids := make([]uint32, 0, len(m.elements))
	for id := range m.elements {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type snapshot struct {
	nextID, nextLink uint32
	elements         map[uint32]models.AssetElement
	ext              map[uint32]map[string]models.ExtValue
	links            []models.AssetLink
	groups           map[uint32]map[uint32]bool
}

func (m *Memory) snapshot() snapshot {
	s := snapshot{
		nextID: m.nextID, nextLink: m.nextLink,
		elements: make(map[uint32]models.AssetElement, len(m.elements)),
		ext:      make(map[uint32]map[string]models.ExtValue, len(m.ext)),
		links:    append([]models.AssetLink(nil), m.links...),
		groups:   make(map[uint32]map[uint32]bool, len(m.groups)),
	}
	for k, v := range m.elements {
		s.elements[k] = v
	}
	for k, attrs := range m.ext {
		cp := make(map[string]models.ExtValue, len(attrs))
		for kk, vv := range attrs {
			cp[kk] = vv
		}
		s.ext[k] = cp
	}
	for k, gs := range m.groups {
		cp := make(map[uint32]bool, len(gs))
		for kk, vv := range gs {
			cp[kk] = vv
		}
		s.groups[k] = cp
	}
	return s
}

func (m *Memory) restore(s snapshot) {
	m.nextID, m.nextLink = s.nextID, s.nextLink
	m.elements, m.ext, m.links, m.groups = s.elements, s.ext, s.links, s.groups
}

func toID(id any) (uint32, bool) {
	switch v := id.(type) {
	case uint32:
		return v, true
	case int:
		return uint32(v), v >= 0
	case uint64:
		return uint32(v), true
	case int64:
		return uint32(v), v >= 0
	}
	return 0, false
}

func containsU16(s []uint16, v uint16) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
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
