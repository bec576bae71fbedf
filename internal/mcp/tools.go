package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
)

type tools struct {
	svc Services
}

// registerTools adds every registry tool to the server.
func registerTools(server *sdkmcp.Server, svc Services) {
	t := &tools{svc: svc}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_projects",
		Description: "List projects with their item counts and highest numbers",
		Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.listProjects)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_project",
		Description: "Create a project that owns a numbered item list",
	}, t.createProject)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_items",
		Description: "List a project's items in ascending number order",
		Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.listItems)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_item",
		Description: "Get one item by id",
		Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.getItem)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "save_item",
		Description: "Create an item (no id) or update one (with id). A number already held by another item shifts that item and all higher ones up by one",
	}, t.saveItem)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_item",
		Description: "Delete an item and release its images. Other numbers are unchanged",
	}, t.deleteItem)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_all_items",
		Description: "Delete every item in a project",
	}, t.deleteAllItems)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "renumber_items",
		Description: "Renumber a project's items to 1..N keeping their order; also repairs an interrupted shift",
	}, t.renumberItems)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "export_items",
		Description: "Export a project's items as a CSV table",
		Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.exportItems)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "import_items",
		Description: "Import a CSV table; all rows are inserted or none",
	}, t.importItems)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "sweep_attachments",
		Description: "Release stored images no item references",
	}, t.sweepAttachments)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_recent_activity",
		Description: "Get the newest registry events for a project",
		Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.recentActivity)
}

// jsonResult renders v as the tool's text content.
func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func toolError(err error) (*sdkmcp.CallToolResult, any, error) {
	return nil, nil, MapError(err)
}

func (t *tools) listProjects(ctx context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, any, error) {
	if err := requireRole(ctx, access.RoleViewer); err != nil {
		return toolError(err)
	}
	projects, err := t.svc.Projects.List(ctx)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(projects)
}

func (t *tools) createProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateProjectParams) (*sdkmcp.CallToolResult, any, error) {
	if err := requireRole(ctx, access.RoleEditor); err != nil {
		return toolError(err)
	}
	proj, err := t.svc.Projects.Create(ctx, project.CreateRequest{Key: in.Key, Name: in.Name})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(proj)
}

func (t *tools) listItems(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, any, error) {
	if err := requireRole(ctx, access.RoleViewer); err != nil {
		return toolError(err)
	}
	items, err := t.svc.Items.List(ctx, in.Project)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(ItemListResponse{Items: items, Count: len(items)})
}

func (t *tools) getItem(ctx context.Context, _ *sdkmcp.CallToolRequest, in ItemParams) (*sdkmcp.CallToolResult, any, error) {
	if err := requireRole(ctx, access.RoleViewer); err != nil {
		return toolError(err)
	}
	it, err := t.svc.Items.Get(ctx, in.Project, in.ID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(it)
}

func (t *tools) saveItem(ctx context.Context, _ *sdkmcp.CallToolRequest, in SaveItemParams) (*sdkmcp.CallToolResult, any, error) {
	if err := requireRole(ctx, access.RoleEditor); err != nil {
		return toolError(err)
	}
	uploads := make([]item.Upload, 0, len(in.Images))
	for i, img := range in.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return toolError(fmt.Errorf("%w: image %d is not base64: %w", item.ErrValidationFailed, i, err))
		}
		uploads = append(uploads, item.Upload{Name: img.Name, Data: data})
	}
	it, err := t.svc.Items.Upsert(ctx, in.Project, item.UpsertRequest{
		ID:     in.ID,
		Number: in.Number,
		Fields: item.Fields{Title: in.Title, Content: in.Content, Detail: in.Detail},
		Images: uploads,
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(it)
}

func (t *tools) deleteItem(ctx context.Context, _ *sdkmcp.CallToolRequest, in ItemParams) (*sdkmcp.CallToolResult, any, error) {
	if err := requireRole(ctx, access.RoleEditor); err != nil {
		return toolError(err)
	}
	if err := t.svc.Items.Delete(ctx, in.Project, in.ID); err != nil {
		return toolError(err)
	}
	return jsonResult(DeleteResponse{Deleted: in.ID})
}

func (t *tools) deleteAllItems(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, any, error) {
	if err := requireRole(ctx, access.RoleEditor); err != nil {
		return toolError(err)
	}
	n, err := t.svc.Items.DeleteAll(ctx, in.Project)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(CountResponse{Count: n})
}

func (t *tools) renumberItems(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, any, error) {
	if err := requireRole(ctx, access.RoleEditor); err != nil {
		return toolError(err)
	}
	res, err := t.svc.Items.Renumber(ctx, in.Project)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (t *tools) exportItems(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, any, error) {
	if err := requireRole(ctx, access.RoleViewer); err != nil {
		return toolError(err)
	}
	var sb strings.Builder
	n, err := t.svc.Items.Export(ctx, in.Project, &sb)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(ExportResponse{CSV: sb.String(), Count: n})
}

func (t *tools) importItems(ctx context.Context, _ *sdkmcp.CallToolRequest, in ImportItemsParams) (*sdkmcp.CallToolResult, any, error) {
	if err := requireRole(ctx, access.RoleEditor); err != nil {
		return toolError(err)
	}
	n, err := t.svc.Items.Import(ctx, in.Project, strings.NewReader(in.CSV))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(CountResponse{Count: n})
}

func (t *tools) sweepAttachments(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, any, error) {
	if err := requireRole(ctx, access.RoleEditor); err != nil {
		return toolError(err)
	}
	res, err := t.svc.Items.Sweep(ctx, in.Project)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (t *tools) recentActivity(ctx context.Context, _ *sdkmcp.CallToolRequest, in ActivityParams) (*sdkmcp.CallToolResult, any, error) {
	if err := requireRole(ctx, access.RoleViewer); err != nil {
		return toolError(err)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	entries, err := t.svc.Activity.GetRecentActivity(ctx, activity.ListOptions{
		ProjectKey: in.Project,
		Limit:      limit,
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(entries)
}
