package models

// SearchHit is one ranked document reference.
type SearchHit struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Version    uint64  `json:"version"`
	Title      string  `json:"title,omitempty"`
	Folder     string  `json:"folder,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Hits      []SearchHit `json:"hits"`
	Total     int         `json:"total"`
	Cached    bool        `json:"cached"`
	QueryTime int64       `json:"query_time_ms"`
	Query     string      `json:"query"`
	Folder    string      `json:"folder,omitempty"`
}
