package export

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"time"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetPage(ctx context.Context, id string) (PageInfo, error)
	GetWorkspace(ctx context.Context, id string) (WorkspaceInfo, error)
	ListBlocks(ctx context.Context, pageID string) ([]BlockInfo, error)
	ListComments(ctx context.Context, pageID string) ([]CommentInfo, error)
}

// PageInfo holds basic page metadata
type PageInfo struct {
	ID          string
	Title       string
	Icon        string
	WorkspaceID string
	UpdatedAt   time.Time
}

// WorkspaceInfo holds workspace metadata
type WorkspaceInfo struct {
	ID   string
	Name string
}

// BlockInfo holds one block in position order
type BlockInfo struct {
	ID       string
	Type     string
	Position float64
	Content  json.RawMessage
}

// CommentInfo holds comment metadata
type CommentInfo struct {
	ID       string
	Author   string
	Body     string
	Resolved bool
}

// Service provides page export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	pageInfo, err := s.store.GetPage(ctx, req.PageID)
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}

	workspaceInfo, err := s.store.GetWorkspace(ctx, pageInfo.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	blocks, err := s.store.ListBlocks(ctx, req.PageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	data := TemplateData{
		Title:         pageInfo.Title,
		Icon:          pageInfo.Icon,
		ContentHTML:   template.HTML(BlocksToHTML(blocks)),
		WorkspaceName: workspaceInfo.Name,
		UpdatedAt:     pageInfo.UpdatedAt,
		Comments:      []TemplateComment{},
	}

	if req.IncludeComments {
		comments, err := s.store.ListComments(ctx, req.PageID)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		for _, c := range comments {
			data.Comments = append(data.Comments, TemplateComment{
				Author:   c.Author,
				Body:     c.Body,
				Resolved: c.Resolved,
			})
		}
	}

	html, err := RenderPageHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(pdfJob{
			HTML:      html,
			Title:     pageInfo.Title,
			Workspace: workspaceInfo.Name,
			UpdatedAt: pageInfo.UpdatedAt,
		})
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
