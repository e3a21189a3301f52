package types

// ImportRequest carries the query parameters of a CSV import.
type ImportRequest struct {
	User   string `validate:"required,max=64,printascii"`
	Notify bool
}
