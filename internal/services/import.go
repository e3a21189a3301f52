package services

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

// CSV columns with a dedicated meaning; every other column is an ext attribute.
const (
	colName         = "name"
	colType         = "type"
	colSubtype      = "sub_type"
	colLocation     = "location"
	colStatus       = "status"
	colPriority     = "priority"
	colAssetTag     = "asset_tag"
	colID           = "id"
	colPowerSource  = "power_source."
	colPowerPlugSrc = "power_plug_src."
	colPowerInput   = "power_input."
	colGroup        = "group."

	ExtCreateMode = "create_mode"
	ExtCreateUser = "create_user"
	ExtUpdateUser = "update_user"
)

// ImportResult is the outcome of one CSV row: the asset id or the error.
type ImportResult struct {
	ID  uint32 `json:"id,omitempty"`
	Err error  `json:"-"`
}

// Reason returns the row error text, or "".
func (r ImportResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return appErr.Reason(r.Err)
}

type csvRow struct {
	num    int
	fields map[string]string
}

// ImportCSV creates or updates one asset per CSV row. Rows are applied in
// order so that later rows may refer to assets created by earlier ones. A
// failing row is reported in the result and does not stop the import.
func (s *assetService) ImportCSV(ctx context.Context, data []byte, user string, sendNotify bool) (map[int]ImportResult, error) {
	if !s.licensing.Configurable() {
		return nil, appErr.New(appErr.CodeLicensing, MsgManipulationProhibited)
	}
	header, records, err := parseCSV(data)
	if err != nil {
		return nil, err
	}

	results := make(map[int]ImportResult, len(records))
	rows := make(chan csvRow)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rows)
		for i, rec := range records {
			fields := make(map[string]string, len(header))
			for j, col := range header {
				if j < len(rec) {
					fields[col] = strings.TrimSpace(rec[j])
				}
			}
			select {
			case rows <- csvRow{num: i + 1, fields: fields}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for row := range rows {
			id, err := s.importRow(gctx, row.fields, user, sendNotify)
			if err != nil {
				logger.L().Info("csv row rejected", zap.Int("row", row.num), zap.Error(err))
			}
			results[row.num] = ImportResult{ID: id, Err: err}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *assetService) importRow(ctx context.Context, f map[string]string, user string, notify bool) (uint32, error) {
	a, err := s.rowAsset(ctx, f)
	if err != nil {
		return 0, err
	}
	a.SetExt(ExtCreateMode, strconv.Itoa(models.CreateModeCSV), false)

	iname := f[colID]
	if iname == "" && a.ExternalName() != "" {
		ids, err := s.repo.FindByExt(ctx, map[string]string{ExtName: a.ExternalName()})
		if err != nil {
			return 0, err
		}
		if len(ids) > 0 {
			elems, err := s.repo.ElementsByIDs(ctx, ids[:1])
			if err != nil {
				return 0, err
			}
			iname = elems[ids[0]].Name
		}
	}

	if iname != "" {
		a.Iname = iname
		a.SetExt(ExtUpdateUser, user, false)
		if cur, err := s.repo.LoadAsset(ctx, iname); err == nil {
			for _, k := range []string{ExtCreateUser, ExtCreateMode} {
				if v, ok := cur.Ext[k]; ok {
					a.Ext[k] = v
				}
			}
		}
		updated, err := s.update(ctx, a, notify)
		if err != nil {
			return 0, err
		}
		return updated.ID, nil
	}

	a.SetExt(ExtCreateUser, user, false)
	a.SetExt(ExtUpdateUser, user, false)
	created, err := s.create(ctx, a, false, notify)
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

// rowAsset maps one CSV row onto an Asset, resolving external names of
// the location, power sources and groups.
func (s *assetService) rowAsset(ctx context.Context, f map[string]string) (*models.Asset, error) {
	a := models.NewAsset()
	if f[colName] == "" {
		return nil, appErr.ParamRequired(colName)
	}
	if f[colType] == "" {
		return nil, appErr.ParamRequired(colType)
	}
	a.Type = f[colType]
	if id := models.TypeID(a.Type); id != models.TypeUnknown {
		a.Type = models.TypeName(id)
	} else {
		return nil, appErr.BadParams(colType, a.Type, "a known asset type")
	}
	if st := f[colSubtype]; st != "" {
		id := models.SubtypeID(st)
		if id == models.SubtypeUnknown {
			return nil, appErr.BadParams(colSubtype, st, "a known asset subtype")
		}
		a.Subtype = models.SubtypeName(id)
	}
	if st := f[colStatus]; st != "" {
		a.Status = st
	}
	if p := f[colPriority]; p != "" {
		prio, err := ParsePriority(p)
		if err != nil {
			return nil, err
		}
		a.Priority = prio
	}
	a.AssetTag = f[colAssetTag]
	a.SetExt(ExtName, f[colName], false)

	if loc := f[colLocation]; loc != "" {
		parent, err := s.resolveName(ctx, colLocation, loc)
		if err != nil {
			return nil, err
		}
		a.Parent = parent
	}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := f[k]
		switch {
		case k == colName, k == colType, k == colSubtype, k == colLocation, k == colStatus,
			k == colPriority, k == colAssetTag, k == colID,
			strings.HasPrefix(k, colPowerPlugSrc), strings.HasPrefix(k, colPowerInput):
		case strings.HasPrefix(k, colPowerSource):
			if v == "" {
				continue
			}
			src, err := s.resolveName(ctx, k, v)
			if err != nil {
				return nil, err
			}
			n := strings.TrimPrefix(k, colPowerSource)
			a.Linked = append(a.Linked, models.Link{
				Source:   src,
				LinkType: models.LinkTypePowerChain,
				SrcOut:   f[colPowerPlugSrc+n],
				DestIn:   f[colPowerInput+n],
			})
		case strings.HasPrefix(k, colGroup):
			if v == "" {
				continue
			}
			g, err := s.resolveName(ctx, k, v)
			if err != nil {
				return nil, err
			}
			a.Groups = append(a.Groups, g)
		default:
			if v != "" {
				a.SetExt(k, v, false)
			}
		}
	}
	return a, nil
}

// resolveName accepts an internal name or an external one and returns the
// internal name.
func (s *assetService) resolveName(ctx context.Context, field, name string) (string, error) {
	if _, err := s.repo.GetByName(ctx, name); err == nil {
		return name, nil
	} else if !appErr.IsCode(err, appErr.CodeNotFound) {
		return "", err
	}
	ids, err := s.repo.FindByExt(ctx, map[string]string{ExtName: name})
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", appErr.BadParams(field, name, "existing asset name")
	}
	elems, err := s.repo.ElementsByIDs(ctx, ids[:1])
	if err != nil {
		return "", err
	}
	return elems[ids[0]].Name, nil
}

// parseCSV decodes Latin-1 input, escapes stray quotes and returns the
// lower-cased header and the data records.
func parseCSV(data []byte) ([]string, [][]string, error) {
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, nil, appErr.BadRequestDocument("csv")
		}
		data = decoded
	}
	r := csv.NewReader(strings.NewReader(sanitizeCSV(string(data))))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, appErr.BadRequestDocument("csv")
		}
		return nil, nil, appErr.Wrap(err, appErr.CodeBadRequestDocument, "Request document has invalid syntax: csv")
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, appErr.Wrap(err, appErr.CodeBadRequestDocument, "Request document has invalid syntax: csv")
	}
	return header, records, nil
}

// sanitizeCSV quotes every unquoted cell that contains a double quote so
// that the quote is read literally. Cells enclosed in double quotes are kept,
// cells enclosed in single quotes are requoted with double quotes.
func sanitizeCSV(in string) string {
	lines := strings.Split(strings.ReplaceAll(in, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		var cells []string
		var cell strings.Builder
		var inQuote rune
		prev := rune(0)
		for _, c := range line {
			if (c == '\'' || c == '"') && prev != '\\' {
				if inQuote == 0 && cell.Len() == 0 {
					inQuote = c
				} else if inQuote == c {
					inQuote = 0
				}
			}
			prev = c
			if c == ',' && inQuote == 0 {
				cells = append(cells, sanitizeCell(cell.String()))
				cell.Reset()
				continue
			}
			cell.WriteRune(c)
		}
		cells = append(cells, sanitizeCell(cell.String()))
		out = append(out, strings.Join(cells, ","))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func sanitizeCell(c string) string {
	if len(c) >= 2 && c[0] == c[len(c)-1] {
		switch c[0] {
		case '"':
			return c
		case '\'':
			c = c[1 : len(c)-1]
			return `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
		}
	}
	if !strings.Contains(c, `"`) {
		return c
	}
	return `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
}
