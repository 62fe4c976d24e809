package controllers

type SearchResult struct {
	URL   string  `json:"url"`
	H1    string  `json:"h1,omitempty"`
	Score float64 `json:"score"`
}

type SearchResponse struct {
	Query   string         `json:"query"`
	K       int            `json:"k"`
	Results []SearchResult `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
