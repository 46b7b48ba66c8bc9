package repository

const (
	DefaultPageSize = 50
	// MaxPageSize also bounds a single export.
	MaxPageSize = 10000
)

// Window is an offset/limit slice over a newest-first listing.
type Window struct {
	Limit  int
	Offset int
}

// NormalizeWindow clamps limit into [1, MaxPageSize] and floors offset at zero.
func NormalizeWindow(limit, offset int) Window {
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return Window{Limit: limit, Offset: offset}
}

// HasMore reports whether rows remain past the window given the unpaged total.
func (w Window) HasMore(total int64) bool {
	return total > int64(w.Offset)+int64(w.Limit)
}
