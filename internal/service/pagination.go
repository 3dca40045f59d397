package service

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// normalizePage clamps list pagination to page >= 1 and 1..maxPageSize rows.
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
