package app

import (
	"context"

	"quillboard/api/internal/export"
)

// exportStore feeds the PDF exporter from the primary data store.
type exportStore struct {
	store dataStore
}

func (e exportStore) GetPage(ctx context.Context, id string) (export.PageInfo, error) {
	page, err := e.store.GetPage(ctx, id)
	if err != nil {
		return export.PageInfo{}, err
	}
	return export.PageInfo{
		ID:          page.ID,
		Title:       page.Title,
		Icon:        page.Icon,
		WorkspaceID: page.WorkspaceID,
		UpdatedAt:   page.UpdatedAt,
	}, nil
}

func (e exportStore) GetWorkspace(ctx context.Context, id string) (export.WorkspaceInfo, error) {
	workspace, err := e.store.GetWorkspace(ctx, id)
	if err != nil {
		return export.WorkspaceInfo{}, err
	}
	return export.WorkspaceInfo{ID: workspace.ID, Name: workspace.Name}, nil
}

func (e exportStore) ListBlocks(ctx context.Context, pageID string) ([]export.BlockInfo, error) {
	blocks, err := e.store.ListBlocks(ctx, pageID)
	if err != nil {
		return nil, err
	}
	items := make([]export.BlockInfo, 0, len(blocks))
	for _, block := range blocks {
		items = append(items, export.BlockInfo{
			ID:       block.ID,
			Type:     block.Type,
			Position: block.Position,
			Content:  block.Content,
		})
	}
	return items, nil
}

func (e exportStore) ListComments(ctx context.Context, pageID string) ([]export.CommentInfo, error) {
	comments, err := e.store.ListComments(ctx, pageID)
	if err != nil {
		return nil, err
	}
	items := make([]export.CommentInfo, 0, len(comments))
	for _, comment := range comments {
		items = append(items, export.CommentInfo{
			ID:       comment.ID,
			Author:   comment.AuthorName,
			Body:     comment.Body,
			Resolved: comment.ResolvedAt != nil,
		})
	}
	return items, nil
}
