package types

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type Meta struct {
	RequestID string `json:"request_id,omitempty"`
}

// ImportAccepted answers an enqueued import.
type ImportAccepted struct {
	ID    string `json:"id"`
	Queue string `json:"queue"`
}

// ImportStatus describes an import task.
type ImportStatus struct {
	ID     string      `json:"id"`
	State  string      `json:"state"`
	Error  string      `json:"error,omitempty"`
	Report interface{} `json:"report,omitempty"`
}
