package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"quillboard/api/internal/export"
	"quillboard/api/internal/rbac"
	"quillboard/api/internal/search"
	"quillboard/api/internal/store"
	"quillboard/api/internal/util"
)

// ── Comments ──

type CreateCommentInput struct {
	Body    string  `json:"body"`
	BlockID *string `json:"blockId"`
}

func (s *Service) CreateComment(ctx context.Context, pageID, userID string, in CreateCommentInput) (map[string]any, error) {
	page, err := s.requirePageRole(ctx, pageID, userID, rbac.ActionComment)
	if err != nil {
		return nil, err
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required", nil)
	}
	if in.BlockID != nil {
		ok, err := s.store.BlockBelongsToPage(ctx, *in.BlockID, pageID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "block does not belong to this page", nil)
		}
	}

	comment := store.Comment{
		ID:       util.NewID("cm"),
		PageID:   pageID,
		BlockID:  in.BlockID,
		AuthorID: userID,
		Body:     body,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}

	if page.CreatedBy != "" && page.CreatedBy != userID {
		s.notify(ctx, store.Notification{
			UserID:    page.CreatedBy,
			Kind:      "comment",
			ActorID:   userID,
			PageID:    &page.ID,
			CommentID: &comment.ID,
			Message:   fmt.Sprintf("New comment on %q", page.Title),
		})
	}
	if s.search != nil {
		author, err := s.store.GetUserByID(ctx, userID)
		if err == nil {
			s.search.IndexComment(search.CommentRecord{
				ID:          comment.ID,
				Body:        comment.Body,
				PageID:      pageID,
				WorkspaceID: page.WorkspaceID,
				AuthorName:  author.DisplayName,
			})
		}
	}
	return commentJSON(comment), nil
}

func (s *Service) ListComments(ctx context.Context, pageID, userID string) ([]map[string]any, error) {
	if _, err := s.requirePageRole(ctx, pageID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, pageID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		items = append(items, commentJSON(comment))
	}
	return items, nil
}

// ResolveComment looks the comment up through its page so membership is
// still enforced.
func (s *Service) ResolveComment(ctx context.Context, pageID, commentID, userID string) error {
	comments, err := s.store.ListComments(ctx, pageID)
	if err != nil {
		return err
	}
	var resolved *store.Comment
	for i := range comments {
		if comments[i].ID == commentID {
			resolved = &comments[i]
			break
		}
	}
	if resolved == nil {
		return sql.ErrNoRows
	}
	page, err := s.requirePageRole(ctx, pageID, userID, rbac.ActionComment)
	if err != nil {
		return err
	}
	if err := s.store.ResolveComment(ctx, commentID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:          resolved.ID,
			Body:        resolved.Body,
			PageID:      pageID,
			WorkspaceID: page.WorkspaceID,
			AuthorName:  resolved.AuthorName,
			Resolved:    true,
		})
	}
	return nil
}

// ── Templates ──

type CreateTemplateInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Kind        string          `json:"kind"`
	Content     json.RawMessage `json:"content"`
}

func (s *Service) CreateTemplate(ctx context.Context, workspaceID, userID string, in CreateTemplateInput) (map[string]any, error) {
	if err := s.requireRole(ctx, workspaceID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if len(in.Content) == 0 {
		in.Content = json.RawMessage("[]")
	}

	template := store.Template{
		ID:          util.NewID("tpl"),
		WorkspaceID: workspaceID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Kind:        firstNonBlank(in.Kind, "page"),
		Content:     in.Content,
		CreatedBy:   userID,
	}
	if err := s.store.InsertTemplate(ctx, template); err != nil {
		return nil, err
	}
	return templateJSON(template), nil
}

func (s *Service) ListTemplates(ctx context.Context, workspaceID, userID string) ([]map[string]any, error) {
	if err := s.requireRole(ctx, workspaceID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	templates, err := s.store.ListTemplates(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(templates))
	for _, template := range templates {
		items = append(items, templateJSON(template))
	}
	return items, nil
}

// templateBlock is the shape stored in a template's content array.
type templateBlock struct {
	Type     string          `json:"type"`
	Content  json.RawMessage `json:"content"`
	Position float64         `json:"position"`
}

// InstantiateTemplate creates a new page pre-filled with the template's
// blocks.
func (s *Service) InstantiateTemplate(ctx context.Context, templateID, userID, title string) (map[string]any, error) {
	template, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, template.WorkspaceID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}

	var blocks []templateBlock
	if len(template.Content) > 0 {
		if err := json.Unmarshal(template.Content, &blocks); err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "template content is not a block list", nil)
		}
	}

	payload, err := s.CreatePage(ctx, template.WorkspaceID, userID, CreatePageInput{
		Title: firstNonBlank(strings.TrimSpace(title), template.Name),
	})
	if err != nil {
		return nil, err
	}
	pageID, _ := payload["id"].(string)

	for i, item := range blocks {
		if _, ok := allowedBlockTypes[item.Type]; !ok {
			continue
		}
		position := item.Position
		if position == 0 {
			position = float64(i + 1)
		}
		if _, err := s.CreateBlock(ctx, pageID, userID, CreateBlockInput{
			Type:     item.Type,
			Content:  item.Content,
			Position: position,
		}); err != nil {
			return nil, err
		}
	}
	return s.GetPage(ctx, pageID, userID)
}

// ── Media ──

func (s *Service) UploadMedia(ctx context.Context, workspaceID, userID, filename, contentType string, size int64, reader io.Reader) (map[string]any, error) {
	if err := s.requireRole(ctx, workspaceID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	if s.media == nil {
		return nil, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage not configured", nil)
	}
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "filename is required", nil)
	}

	file := store.MediaFile{
		ID:          util.NewID("med"),
		WorkspaceID: workspaceID,
		UploaderID:  userID,
		Filename:    filename,
		ContentType: firstNonBlank(contentType, "application/octet-stream"),
		Size:        size,
	}
	file.ObjectKey = workspaceID + "/" + file.ID + "/" + filename

	if err := s.media.Upload(ctx, file.ObjectKey, reader, size, file.ContentType); err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}
	if err := s.store.InsertMediaFile(ctx, file); err != nil {
		return nil, err
	}
	return s.mediaJSON(ctx, file), nil
}

func (s *Service) ListMedia(ctx context.Context, workspaceID, userID string) ([]map[string]any, error) {
	if err := s.requireRole(ctx, workspaceID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	files, err := s.store.ListMediaFiles(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(files))
	for _, file := range files {
		items = append(items, s.mediaJSON(ctx, file))
	}
	return items, nil
}

func (s *Service) DeleteMedia(ctx context.Context, fileID, userID string) error {
	file, err := s.store.GetMediaFile(ctx, fileID)
	if err != nil {
		return err
	}
	if err := s.requireRole(ctx, file.WorkspaceID, userID, rbac.ActionWrite); err != nil {
		return err
	}
	if s.media != nil {
		_ = s.media.Remove(ctx, file.ObjectKey)
	}
	return s.store.DeleteMediaFile(ctx, fileID)
}

func (s *Service) mediaJSON(ctx context.Context, file store.MediaFile) map[string]any {
	payload := map[string]any{
		"id":          file.ID,
		"workspaceId": file.WorkspaceID,
		"uploaderId":  file.UploaderID,
		"filename":    file.Filename,
		"contentType": file.ContentType,
		"size":        file.Size,
		"createdAt":   file.CreatedAt,
	}
	if s.media != nil {
		if url, err := s.media.DownloadURL(ctx, file.ObjectKey, file.Filename, 15*time.Minute); err == nil {
			payload["url"] = url
		}
	}
	return payload
}

// ── Notifications ──

func (s *Service) notify(ctx context.Context, notification store.Notification) {
	notification.ID = util.NewID("ntf")
	if err := s.store.InsertNotification(ctx, notification); err != nil {
		// Notifications are best-effort.
		return
	}
}

func (s *Service) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]map[string]any, error) {
	notifications, err := s.store.ListNotifications(ctx, userID, unreadOnly)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notifications))
	for _, notification := range notifications {
		items = append(items, map[string]any{
			"id":        notification.ID,
			"kind":      notification.Kind,
			"actorId":   notification.ActorID,
			"pageId":    notification.PageID,
			"commentId": notification.CommentID,
			"message":   notification.Message,
			"read":      notification.ReadAt != nil,
			"createdAt": notification.CreatedAt,
		})
	}
	return items, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, notificationID, userID string) error {
	return s.store.MarkNotificationRead(ctx, notificationID, userID)
}

// ── Search ──

func (s *Service) Search(ctx context.Context, q, filterType, workspaceID, userID string, limit, offset int) (map[string]any, error) {
	if workspaceID != "" {
		if err := s.requireRole(ctx, workspaceID, userID, rbac.ActionRead); err != nil {
			return nil, err
		}
	}
	if s.search == nil {
		return map[string]any{"results": []search.Result{}, "total": 0, "query": q}, nil
	}
	if filterType != "" && filterType != string(search.ResultPage) && filterType != string(search.ResultComment) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be page or comment", nil)
	}

	response := s.search.Search(search.Query{
		Text:              q,
		FilterType:        search.ResultType(filterType),
		FilterWorkspaceID: workspaceID,
		Limit:             limit,
		Offset:            offset,
	})
	return map[string]any{
		"results": response.Results,
		"total":   response.Total,
		"query":   response.Query,
	}, nil
}

// ── Export ──

func (s *Service) ExportPagePDF(ctx context.Context, pageID, userID string, includeComments bool) (*export.Result, error) {
	if _, err := s.requirePageRole(ctx, pageID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export not configured", nil)
	}
	return s.exporter.Export(ctx, export.Request{
		PageID:          pageID,
		Format:          export.FormatPDF,
		IncludeComments: includeComments,
	})
}

func commentJSON(comment store.Comment) map[string]any {
	return map[string]any{
		"id":        comment.ID,
		"pageId":    comment.PageID,
		"blockId":   comment.BlockID,
		"authorId":  comment.AuthorID,
		"author":    comment.AuthorName,
		"body":      comment.Body,
		"resolved":  comment.ResolvedAt != nil,
		"createdAt": comment.CreatedAt,
	}
}

func templateJSON(template store.Template) map[string]any {
	return map[string]any{
		"id":          template.ID,
		"workspaceId": template.WorkspaceID,
		"name":        template.Name,
		"description": template.Description,
		"kind":        template.Kind,
		"content":     json.RawMessage(template.Content),
		"createdBy":   template.CreatedBy,
		"createdAt":   template.CreatedAt,
	}
}
