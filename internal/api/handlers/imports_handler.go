package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/api/types"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/queue/tasks"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

// MaxImportSize bounds an uploaded CSV document.
const MaxImportSize = 16 << 20

// TaskEnqueuer is implemented by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskInspector is implemented by *asynq.Inspector.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

type ImportsHandler struct {
	client    TaskEnqueuer
	inspector TaskInspector
	queue     string
	validate  interface{ Struct(any) error }
}

func NewImportsHandler(client TaskEnqueuer, inspector TaskInspector, v interface{ Struct(any) error }) *ImportsHandler {
	return &ImportsHandler{client: client, inspector: inspector, queue: "default", validate: v}
}

// Create enqueues the CSV body as an import task. Query parameters: user
// (recorded as create_user / update_user) and notify.
func (h *ImportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := types.ImportRequest{User: q.Get("user")}
	if s := q.Get("notify"); s != "" {
		notify, err := strconv.ParseBool(s)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "notify must be a boolean")
			return
		}
		req.Notify = notify
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImportSize))
	if err != nil {
		writeErrorStr(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}
	if len(body) == 0 {
		writeErrorStr(w, http.StatusBadRequest, "empty document")
		return
	}

	task, err := tasks.NewImportCSVTask(tasks.ImportPayload{CSV: body, User: req.User, SendNotify: req.Notify})
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := h.client.EnqueueContext(r.Context(), task, asynq.Queue(h.queue))
	if err != nil {
		logger.L().Error("enqueue import task failed", zap.Error(err))
		writeErrorStr(w, http.StatusServiceUnavailable, "import queue unavailable")
		return
	}
	logger.L().Info("import enqueued", zap.String("task_id", info.ID), zap.String("user", req.User), zap.Int("bytes", len(body)))
	writeData(w, r, http.StatusAccepted, types.ImportAccepted{ID: info.ID, Queue: info.Queue})
}

// Get reports the state of an import task and its report once completed.
func (h *ImportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := h.inspector.GetTaskInfo(h.queue, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			writeErrorStr(w, http.StatusNotFound, "import not found")
			return
		}
		logger.L().Error("inspect import task failed", zap.String("task_id", id), zap.Error(err))
		writeErrorStr(w, http.StatusServiceUnavailable, "import queue unavailable")
		return
	}
	if info.Type != tasks.TypeImportCSV {
		writeErrorStr(w, http.StatusNotFound, "import not found")
		return
	}

	status := types.ImportStatus{ID: info.ID, State: info.State.String(), Error: info.LastErr}
	if info.State == asynq.TaskStateCompleted && len(info.Result) > 0 {
		var rep tasks.ImportReport
		if err := json.Unmarshal(info.Result, &rep); err != nil {
			writeErrorStr(w, http.StatusInternalServerError, "corrupted import report")
			return
		}
		status.Report = rep
	}
	writeData(w, r, http.StatusOK, status)
}
