package tasks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/services"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Task type names.
const (
	TypeImportCSV    = "asset:import_csv"
	TypeRepublishAll = "asset:republish_all"
)

// ImportResultRetention is how long an import report stays readable.
const ImportResultRetention = 24 * time.Hour

// ImportPayload is the task payload of a CSV import.
type ImportPayload struct {
	CSV        []byte `json:"csv"`
	User       string `json:"user"`
	SendNotify bool   `json:"send_notify"`
}

// ImportRow is the outcome of one CSV row.
type ImportRow struct {
	Row   int    `json:"row"`
	ID    uint32 `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// ImportReport is the result written by a CSV import task.
type ImportReport struct {
	Imported int         `json:"imported"`
	Failed   int         `json:"failed"`
	Rows     []ImportRow `json:"rows"`
}

// NewImportCSVTask builds an import task. Imports are not retried: rows
// already written would be imported twice.
func NewImportCSVTask(p ImportPayload) (*asynq.Task, error) {
	pb, err := json.Marshal(p)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "encode import payload failed")
	}
	return asynq.NewTask(TypeImportCSV, pb, asynq.MaxRetry(0), asynq.Retention(ImportResultRetention)), nil
}

// NewRepublishAllTask builds the periodic full republish task.
func NewRepublishAllTask() *asynq.Task {
	return asynq.NewTask(TypeRepublishAll, nil, asynq.MaxRetry(0))
}

// BuildReport orders the per-row results of an import.
func BuildReport(results map[int]services.ImportResult) ImportReport {
	rows := make([]int, 0, len(results))
	for r := range results {
		rows = append(rows, r)
	}
	sort.Ints(rows)

	rep := ImportReport{Rows: make([]ImportRow, 0, len(rows))}
	for _, r := range rows {
		res := results[r]
		if res.Err != nil {
			rep.Failed++
		} else {
			rep.Imported++
		}
		rep.Rows = append(rep.Rows, ImportRow{Row: r, ID: res.ID, Error: res.Reason()})
	}
	return rep
}

// AssetTaskHandler runs the asset tasks of the worker.
type AssetTaskHandler struct {
	svc   services.AssetService
	bus   bus.Bus
	agent string
}

func NewAssetTaskHandler(svc services.AssetService, b bus.Bus, agentName string) *AssetTaskHandler {
	return &AssetTaskHandler{svc: svc, bus: b, agent: agentName}
}

func (h *AssetTaskHandler) HandleImportCSV(ctx context.Context, t *asynq.Task) error {
	var p ImportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid import task payload", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	logger.L().Info("handling import task", zap.String("user", p.User), zap.Int("bytes", len(p.CSV)))
	results, err := h.svc.ImportCSV(ctx, p.CSV, p.User, p.SendNotify)
	if err != nil {
		logger.L().Error("import failed", zap.Error(err))
		return err
	}

	rep := BuildReport(results)
	logger.L().Info("import completed", zap.Int("imported", rep.Imported), zap.Int("failed", rep.Failed))
	if w := t.ResultWriter(); w != nil {
		raw, err := json.Marshal(rep)
		if err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "encode import report failed")
		}
		if _, err := w.Write(raw); err != nil {
			logger.L().Error("write import report failed", zap.Error(err))
			return err
		}
	}
	return nil
}

// HandleRepublishAll asks the agent to republish every asset.
func (h *AssetTaskHandler) HandleRepublishAll(ctx context.Context, _ *asynq.Task) error {
	if err := h.bus.Send(ctx, h.agent, "REPUBLISH", "", bus.StringFrames("$all")...); err != nil {
		logger.L().Error("republish request failed", zap.String("agent", h.agent), zap.Error(err))
		return err
	}
	logger.L().Info("republish requested", zap.String("agent", h.agent))
	return nil
}

// Register binds the handlers on mux.
func (h *AssetTaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeImportCSV, h.HandleImportCSV)
	mux.HandleFunc(TypeRepublishAll, h.HandleRepublishAll)
}
