package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/queue/tasks"
)

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	if v := args.Get(0); v != nil {
		return v.(*asynq.TaskInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockQueue) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	args := m.Called(queue, id)
	if v := args.Get(0); v != nil {
		return v.(*asynq.TaskInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestImportsHandler_Create(t *testing.T) {
	csv := "name,type\nDC,datacenter\n"
	isImport := mock.MatchedBy(func(task *asynq.Task) bool {
		var p tasks.ImportPayload
		return task.Type() == tasks.TypeImportCSV &&
			json.Unmarshal(task.Payload(), &p) == nil &&
			string(p.CSV) == csv && p.User == "admin" && p.SendNotify
	})

	t.Run("enqueued", func(t *testing.T) {
		q := &mockQueue{}
		q.On("EnqueueContext", mock.Anything, isImport).Return(&asynq.TaskInfo{ID: "task-1", Queue: "default"}, nil).Once()
		h := NewImportsHandler(q, q, validator.New())

		rr := httptest.NewRecorder()
		h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/assets/import?user=admin&notify=true", strings.NewReader(csv)))
		require.Equal(t, http.StatusAccepted, rr.Code)
		require.Contains(t, rr.Body.String(), `"id":"task-1"`)
		q.AssertExpectations(t)
	})

	tests := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"missing user", "/api/v1/assets/import", csv, http.StatusBadRequest},
		{"bad notify", "/api/v1/assets/import?user=admin&notify=maybe", csv, http.StatusBadRequest},
		{"empty body", "/api/v1/assets/import?user=admin", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &mockQueue{}
			h := NewImportsHandler(q, q, validator.New())
			rr := httptest.NewRecorder()
			h.Create(rr, httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body)))
			require.Equal(t, tt.status, rr.Code)
			q.AssertNotCalled(t, "EnqueueContext", mock.Anything, mock.Anything)
		})
	}

	t.Run("queue down", func(t *testing.T) {
		q := &mockQueue{}
		q.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: refused")).Once()
		h := NewImportsHandler(q, q, validator.New())
		rr := httptest.NewRecorder()
		h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/assets/import?user=admin", strings.NewReader(csv)))
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestImportsHandler_Get(t *testing.T) {
	report, err := json.Marshal(tasks.ImportReport{Imported: 1, Rows: []tasks.ImportRow{{Row: 1, ID: 4}}})
	require.NoError(t, err)

	q := &mockQueue{}
	q.On("GetTaskInfo", "default", "done").Return(&asynq.TaskInfo{
		ID: "done", Type: tasks.TypeImportCSV, State: asynq.TaskStateCompleted, Result: report,
	}, nil).Once()
	q.On("GetTaskInfo", "default", "running").Return(&asynq.TaskInfo{
		ID: "running", Type: tasks.TypeImportCSV, State: asynq.TaskStateActive,
	}, nil).Once()
	q.On("GetTaskInfo", "default", "other").Return(&asynq.TaskInfo{
		ID: "other", Type: tasks.TypeRepublishAll, State: asynq.TaskStateCompleted,
	}, nil).Once()
	q.On("GetTaskInfo", "default", "gone").Return(nil, asynq.ErrTaskNotFound).Once()
	h := NewImportsHandler(q, q, validator.New())

	get := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+id, nil)
		rr := httptest.NewRecorder()
		h.Get(rr, req.WithContext(withParams(req.Context(), "id", id)))
		return rr
	}

	rr := get("done")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data struct {
			State  string             `json:"state"`
			Report tasks.ImportReport `json:"report"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "completed", body.Data.State)
	require.Equal(t, 1, body.Data.Report.Imported)
	require.Equal(t, uint32(4), body.Data.Report.Rows[0].ID)

	rr = get("running")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"state":"active"`)
	require.NotContains(t, rr.Body.String(), `"report"`)

	require.Equal(t, http.StatusNotFound, get("other").Code)
	require.Equal(t, http.StatusNotFound, get("gone").Code)
	q.AssertExpectations(t)
}
