package models

// Defaults for result truncation.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// SearchQuery is a free-text query with an optional folder scope.
type SearchQuery struct {
	Query  string `json:"query"`
	Folder string `json:"folder,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Normalize applies limit defaults and cleans the folder scope.
// An empty query is not an error; the engine answers it with an empty list.
func (q *SearchQuery) Normalize(defaultLimit, maxLimit int) {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	q.Folder = NormalizeFolder(q.Folder)
}
