package services

import (
	"context"
	"sort"
	"strings"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

// POWERCHAINS and LOCATION selectors.
const (
	SelectTo          = "to"
	SelectFrom        = "from"
	SelectFilterDC    = "filter_dc"
	SelectFilterGroup = "filter_group"

	locationAll = "none"
)

// PowerDevice is one node of a power graph.
type PowerDevice struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Subtype string `json:"sub_type"`
}

// PowerLink is one edge of a power graph.
type PowerLink struct {
	Src       string `json:"src-id"`
	SrcSocket string `json:"src-socket,omitempty"`
	Dst       string `json:"dst-id"`
	DstSocket string `json:"dst-socket,omitempty"`
}

// PowerGraph is the JSON body of the power topology replies.
type PowerGraph struct {
	Devices     []PowerDevice `json:"devices"`
	Powerchains []PowerLink   `json:"powerchains"`
}

// LocationNode is one asset of a location tree.
type LocationNode struct {
	Name     string          `json:"name"`
	ID       string          `json:"id"`
	Type     string          `json:"type,omitempty"`
	Subtype  string          `json:"sub_type,omitempty"`
	Contains []*LocationNode `json:"contains,omitempty"`
}

// LocationOptions are the key=value options of LOCATION from.
type LocationOptions struct {
	Recursive      bool
	Filter         string
	ContainersOnly bool
}

// ParseLocationOptions parses "recursive=true,filter=rack,containers_only=true".
func ParseLocationOptions(s string) (LocationOptions, error) {
	var o LocationOptions
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return o, appErr.BadParams("options", kv, "key=value")
		}
		switch strings.TrimSpace(k) {
		case "recursive":
			o.Recursive = strings.EqualFold(v, "true")
		case "containers_only":
			o.ContainersOnly = strings.EqualFold(v, "true")
		case "filter":
			if models.TypeID(v) == models.TypeUnknown {
				return o, appErr.BadParams("filter", v, "a known asset type")
			}
			o.Filter = models.TypeName(models.TypeID(v))
		default:
			return o, appErr.BadParams("options", k, "recursive, filter or containers_only")
		}
	}
	return o, nil
}

// Topology answers the read-only topology queries.
type Topology struct {
	repo repository.AssetRepository
}

func NewTopology(repo repository.AssetRepository) *Topology {
	return &Topology{repo: repo}
}

// TopologyReason renders err as the human readable reason of a TOPOLOGY
// error reply.
func TopologyReason(err error) string {
	switch appErr.CodeOf(err) {
	case appErr.CodeNotFound:
		return "Asset not found"
	case appErr.CodeBadParams:
		return appErr.Reason(err)
	}
	return "Internal error"
}

type powerIndex struct {
	links []models.AssetLink
	up    map[uint32][]models.AssetLink
	down  map[uint32][]models.AssetLink
}

func (t *Topology) powerIndex(ctx context.Context) (*powerIndex, error) {
	links, err := t.repo.LinksByType(ctx, models.LinkTypePowerChain)
	if err != nil {
		return nil, err
	}
	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })
	idx := &powerIndex{links: links, up: map[uint32][]models.AssetLink{}, down: map[uint32][]models.AssetLink{}}
	for _, l := range links {
		idx.up[l.DestID] = append(idx.up[l.DestID], l)
		idx.down[l.SrcID] = append(idx.down[l.SrcID], l)
	}
	return idx, nil
}

// walk visits the closure of start over edges, breadth first, returning the
// visited ids in order and the traversed links.
func walk(start []uint32, edges map[uint32][]models.AssetLink, upstream bool) ([]uint32, []models.AssetLink) {
	seen := map[uint32]bool{}
	for _, id := range start {
		seen[id] = true
	}
	queue := append([]uint32(nil), start...)
	var order []uint32
	var used []models.AssetLink
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, l := range edges[cur] {
			used = append(used, l)
			next := l.DestID
			if upstream {
				next = l.SrcID
			}
			if seen[next] {
				continue
			}
			seen[next] = true
			order = append(order, next)
			queue = append(queue, next)
		}
	}
	return order, used
}

// Power lists the devices feeding name, transitively. For a container the
// sources of all its devices are merged, devices inside it excluded.
func (t *Topology) Power(ctx context.Context, name string) ([]string, error) {
	e, err := t.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	idx, err := t.powerIndex(ctx)
	if err != nil {
		return nil, err
	}

	start := []uint32{e.ID}
	inside := map[uint32]bool{e.ID: true}
	if models.IsContainer(e.TypeID) {
		rows, err := t.repo.SuperParents(ctx, repository.AssetFilter{ContainerID: e.ID, TypeIDs: []uint16{models.TypeDevice}})
		if err != nil {
			return nil, err
		}
		start = start[:0]
		for _, r := range rows {
			start = append(start, r.ID)
			inside[r.ID] = true
		}
	}

	order, _ := walk(start, idx.up, true)
	ids := make([]uint32, 0, len(order))
	for _, id := range order {
		if !inside[id] {
			ids = append(ids, id)
		}
	}
	elems, err := t.repo.ElementsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if el, ok := elems[id]; ok {
			out = append(out, el.Name)
		}
	}
	return out, nil
}

// PowerTo returns the devices directly fed by name.
func (t *Topology) PowerTo(ctx context.Context, name string) (*PowerGraph, error) {
	e, err := t.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	idx, err := t.powerIndex(ctx)
	if err != nil {
		return nil, err
	}
	links := idx.down[e.ID]
	ids := []uint32{e.ID}
	for _, l := range links {
		ids = append(ids, l.DestID)
	}
	return t.graph(ctx, ids, links)
}

// Powerchains returns the power graph selected by cmd around name.
func (t *Topology) Powerchains(ctx context.Context, cmd, name string) (*PowerGraph, error) {
	e, err := t.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	idx, err := t.powerIndex(ctx)
	if err != nil {
		return nil, err
	}
	switch cmd {
	case SelectTo, SelectFrom:
		edges, upstream := idx.up, true
		if cmd == SelectFrom {
			edges, upstream = idx.down, false
		}
		order, used := walk([]uint32{e.ID}, edges, upstream)
		return t.graph(ctx, append([]uint32{e.ID}, order...), used)
	case SelectFilterDC:
		if e.TypeID != models.TypeDatacenter {
			return nil, appErr.New(appErr.CodeBadParams, "Asset is not a datacenter")
		}
		rows, err := t.repo.SuperParents(ctx, repository.AssetFilter{ContainerID: e.ID, TypeIDs: []uint16{models.TypeDevice}})
		if err != nil {
			return nil, err
		}
		ids := make([]uint32, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
		return t.graph(ctx, ids, linksAmong(idx.links, ids))
	case SelectFilterGroup:
		if e.TypeID != models.TypeGroup {
			return nil, appErr.New(appErr.CodeBadParams, "Asset is not a group")
		}
		members, err := t.repo.GroupMembers(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]uint32, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		return t.graph(ctx, ids, linksAmong(idx.links, ids))
	}
	return nil, appErr.BadParams("command", cmd, "to, from, filter_dc or filter_group")
}

// InputPowerchain returns the power links entering the data center dc from
// outside.
func (t *Topology) InputPowerchain(ctx context.Context, dc string) (*PowerGraph, error) {
	e, err := t.repo.GetByName(ctx, dc)
	if err != nil {
		return nil, err
	}
	if e.TypeID != models.TypeDatacenter {
		return nil, appErr.New(appErr.CodeBadParams, "Asset is not a datacenter")
	}
	rows, err := t.repo.SuperParents(ctx, repository.AssetFilter{ContainerID: e.ID})
	if err != nil {
		return nil, err
	}
	inside := make(map[uint32]bool, len(rows))
	for _, r := range rows {
		inside[r.ID] = true
	}
	idx, err := t.powerIndex(ctx)
	if err != nil {
		return nil, err
	}
	var links []models.AssetLink
	var ids []uint32
	seen := map[uint32]bool{}
	for _, l := range idx.links {
		if !inside[l.DestID] || inside[l.SrcID] {
			continue
		}
		links = append(links, l)
		for _, id := range []uint32{l.SrcID, l.DestID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return t.graph(ctx, ids, links)
}

func linksAmong(links []models.AssetLink, ids []uint32) []models.AssetLink {
	in := make(map[uint32]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}
	var out []models.AssetLink
	for _, l := range links {
		if in[l.SrcID] && in[l.DestID] {
			out = append(out, l)
		}
	}
	return out
}

func (t *Topology) graph(ctx context.Context, ids []uint32, links []models.AssetLink) (*PowerGraph, error) {
	all := append([]uint32(nil), ids...)
	for _, l := range links {
		all = append(all, l.SrcID, l.DestID)
	}
	elems, err := t.repo.ElementsByIDs(ctx, all)
	if err != nil {
		return nil, err
	}
	names, err := t.enames(ctx, all)
	if err != nil {
		return nil, err
	}

	g := &PowerGraph{Devices: []PowerDevice{}, Powerchains: []PowerLink{}}
	seen := map[uint32]bool{}
	for _, id := range ids {
		el, ok := elems[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		g.Devices = append(g.Devices, PowerDevice{Name: nameOr(names[id], el.Name), ID: el.Name, Subtype: models.SubtypeName(el.SubtypeID)})
	}
	for _, l := range links {
		g.Powerchains = append(g.Powerchains, PowerLink{
			Src:       elems[l.SrcID].Name,
			SrcSocket: deref(l.SrcOut),
			Dst:       elems[l.DestID].Name,
			DstSocket: deref(l.DestIn),
		})
	}
	return g, nil
}

// LocationTo returns the chain of containers from the outermost one down
// to name.
func (t *Topology) LocationTo(ctx context.Context, name string) (*LocationNode, error) {
	e, err := t.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	sp, err := t.repo.SuperParent(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	chain := sp.Ancestors()
	ids := []uint32{e.ID}
	for _, a := range chain {
		ids = append(ids, a.ID)
	}
	elems, err := t.repo.ElementsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names, err := t.enames(ctx, ids)
	if err != nil {
		return nil, err
	}

	node := t.node(elems[e.ID], names)
	for _, a := range chain {
		parent := t.node(elems[a.ID], names)
		parent.Contains = []*LocationNode{node}
		node = parent
	}
	return node, nil
}

// LocationFrom returns the subtree under name, or under every top level
// asset when name is "none".
func (t *Topology) LocationFrom(ctx context.Context, name string, opts LocationOptions) (*LocationNode, error) {
	rows, err := t.repo.SuperParents(ctx, repository.AssetFilter{})
	if err != nil {
		return nil, err
	}
	children := map[uint32][]models.SuperParent{}
	var top []models.SuperParent
	ids := make([]uint32, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
		if r.IDParent1 == nil {
			top = append(top, r)
		} else {
			children[*r.IDParent1] = append(children[*r.IDParent1], r)
		}
	}
	names, err := t.enames(ctx, ids)
	if err != nil {
		return nil, err
	}

	var root *LocationNode
	var kids []models.SuperParent
	if name == locationAll {
		root = &LocationNode{Name: locationAll, ID: locationAll}
		kids = top
	} else {
		e, err := t.repo.GetByName(ctx, name)
		if err != nil {
			return nil, err
		}
		root = t.node(*e, names)
		kids = children[e.ID]
	}
	for _, k := range kids {
		root.Contains = append(root.Contains, t.subtree(k, children, names, opts)...)
	}
	return root, nil
}

// subtree renders r and its descendants. Nodes rejected by the options are
// replaced by their own rendered children.
func (t *Topology) subtree(r models.SuperParent, children map[uint32][]models.SuperParent, names map[uint32]string, opts LocationOptions) []*LocationNode {
	var below []*LocationNode
	if opts.Recursive {
		for _, c := range children[r.ID] {
			below = append(below, t.subtree(c, children, names, opts)...)
		}
	}
	keep := true
	if opts.ContainersOnly && !models.IsContainer(r.TypeID) {
		keep = false
	}
	if opts.Filter != "" && models.TypeName(r.TypeID) != opts.Filter {
		keep = false
	}
	if !keep {
		return below
	}
	n := &LocationNode{
		Name:     nameOr(names[r.ID], r.Name),
		ID:       r.Name,
		Type:     models.TypeName(r.TypeID),
		Subtype:  subtypeOf(r.TypeID, r.SubtypeID),
		Contains: below,
	}
	return []*LocationNode{n}
}

func (t *Topology) node(e models.AssetElement, names map[uint32]string) *LocationNode {
	return &LocationNode{
		Name:    nameOr(names[e.ID], e.Name),
		ID:      e.Name,
		Type:    models.TypeName(e.TypeID),
		Subtype: subtypeOf(e.TypeID, e.SubtypeID),
	}
}

func (t *Topology) enames(ctx context.Context, ids []uint32) (map[uint32]string, error) {
	ext, err := t.repo.Ext(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]string, len(ext))
	for id, attrs := range ext {
		if v := attrs[ExtName].Value; v != "" {
			out[id] = v
		}
	}
	return out, nil
}

func subtypeOf(typeID, subtypeID uint16) string {
	if typeID != models.TypeDevice {
		return ""
	}
	return models.SubtypeName(subtypeID)
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
