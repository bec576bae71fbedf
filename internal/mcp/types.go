package mcp

import (
	"github.com/rpggio/dsheet/internal/domain/item"
)

type CreateProjectParams struct {
	Key  string `json:"key" jsonschema:"project key: letters, digits and underscore"`
	Name string `json:"name,omitempty" jsonschema:"display name, defaults to the key"`
}

type ProjectParams struct {
	Project string `json:"project" jsonschema:"project key"`
}

type ItemParams struct {
	Project string `json:"project" jsonschema:"project key"`
	ID      string `json:"id" jsonschema:"item id"`
}

type ImageParam struct {
	Name string `json:"name" jsonschema:"original file name"`
	Data string `json:"data" jsonschema:"base64 encoded JPEG, PNG or GIF bytes"`
}

type SaveItemParams struct {
	Project string       `json:"project" jsonschema:"project key"`
	ID      string       `json:"id,omitempty" jsonschema:"item id; omit to create a new item"`
	Number  int          `json:"number" jsonschema:"position; a taken number shifts the holder and everything above it up by one"`
	Title   string       `json:"title"`
	Content string       `json:"content"`
	Detail  string       `json:"detail"`
	Images  []ImageParam `json:"images,omitempty" jsonschema:"images to append to the item"`
}

type ImportItemsParams struct {
	Project string `json:"project" jsonschema:"project key"`
	CSV     string `json:"csv" jsonschema:"table with header number,title,content,detail"`
}

type ActivityParams struct {
	Project string `json:"project" jsonschema:"project key"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum entries, newest first"`
}

type ItemListResponse struct {
	Items []item.Item `json:"items"`
	Count int         `json:"count"`
}

type ExportResponse struct {
	CSV   string `json:"csv"`
	Count int    `json:"count"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type DeleteResponse struct {
	Deleted string `json:"deleted"`
}
