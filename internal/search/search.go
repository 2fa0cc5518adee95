package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultPage    ResultType = "page"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type        ResultType `json:"type"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet"`
	PageID      string     `json:"pageId"`
	WorkspaceID string     `json:"workspaceId"`
}

// Query describes a search request.
type Query struct {
	Text              string
	FilterType        ResultType // empty = all types
	FilterWorkspaceID string
	Limit             int
	Offset            int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexPage(p PageRecord) error
	IndexComment(c CommentRecord) error
	DeletePage(id string) error
	DeleteComment(id string) error
}

// PageRecord is the data we index for a page.
type PageRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Icon        string `json:"icon"`
	WorkspaceID string `json:"workspaceId"`
	Archived    bool   `json:"archived"`
}

// CommentRecord is the data we index for a comment.
type CommentRecord struct {
	ID          string `json:"id"`
	Body        string `json:"body"`
	PageID      string `json:"pageId"`
	WorkspaceID string `json:"workspaceId"`
	AuthorName  string `json:"authorName"`
	Resolved    bool   `json:"resolved"`
}
