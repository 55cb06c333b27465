package storage

import "github.com/gateway-fm/walletbot/pkg/types"

// Pagination limits applied by the HTTP API.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PaginatedCycles represents a paginated list of cycles.
type PaginatedCycles struct {
	Cycles []types.CycleReport `json:"cycles"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// CycleDetail is a cycle together with every operation it ran.
type CycleDetail struct {
	Cycle      types.CycleReport       `json:"cycle"`
	Operations []types.OperationReport `json:"operations"`
}

// ClampPage normalizes limit and offset query values.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
