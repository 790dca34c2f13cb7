package util

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Paginate turns a 1-based page and a page size into an offset and limit.
// Out-of-range inputs fall back to the first page and the default size.
func Paginate(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return (page - 1) * size, size
}
