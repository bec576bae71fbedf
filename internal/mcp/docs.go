package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `dsheet keeps numbered check-sheet items per project.

Core concepts:
- Project: a namespace identified by a short key (letters, digits, underscore).
- Item: title, content and detail plus attached images, identified by id and positioned by number.
- Numbers are unique within a project. They need not be contiguous.

Rules of engagement:
1) Orient: list_projects, then list_items for the project you work on.
2) Insert: save_item without id at the number where the item belongs. If that number is taken,
   the item holding it and every item above it move up by one.
3) Move: save_item with id and a new number. Same shifting rule applies.
4) Tidy: renumber_items closes gaps so numbers run 1..N in the same order.
5) Bulk: export_items and import_items use a CSV table (see dsheet://docs/table-format).
   Import never shifts; a number already in use rejects the whole table.

Docs:
- dsheet://docs/table-format
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "dsheet://docs/table-format",
		Name:        "table-format",
		Title:       "Import and export table format",
		Description: "CSV layout accepted by import_items and produced by export_items",
		Content: `# Table format

- UTF-8 CSV, comma separated, RFC 4180 quoting.
- First row is exactly: number,title,content,detail
- One item per row; every row has four fields.
- number is a positive integer, unique within the table.
- title, content and detail are required text; quote fields holding commas, quotes or newlines.
- Images are not part of the table.

## Import rules

- All rows are inserted or none are.
- A number repeated inside the table, or already held by an item in the project, rejects the table.
- Rows keep their own numbers; nothing is shifted.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
