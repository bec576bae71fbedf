package transport_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/testserver"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Status int
	Body   []byte
}

func do(t *testing.T, ts *testserver.TestServer, token, method, path, contentType string, body io.Reader) apiResponse {
	t.Helper()

	req, err := http.NewRequest(method, ts.Server.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return apiResponse{Status: resp.StatusCode, Body: data}
}

func doJSON(t *testing.T, ts *testserver.TestServer, method, path string, payload any) apiResponse {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return do(t, ts, ts.Token, method, path, "application/json", body)
}

func decode[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body, &v), string(resp.Body))
	return v
}

func errorCode(t *testing.T, resp apiResponse) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &body), string(resp.Body))
	return body.Error.Code
}

func saveItem(t *testing.T, ts *testserver.TestServer, key string, number int, title string) item.Item {
	t.Helper()
	resp := doJSON(t, ts, http.MethodPost, "/api/projects/"+key+"/items", map[string]any{
		"number": number, "title": title, "content": title + " content", "detail": title + " detail",
	})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	return decode[item.Item](t, resp)
}

func listState(t *testing.T, ts *testserver.TestServer, key string) []string {
	t.Helper()
	resp := doJSON(t, ts, http.MethodGet, "/api/projects/"+key+"/items", nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	var out []string
	for _, it := range decode[[]item.Item](t, resp) {
		out = append(out, fmt.Sprintf("%d:%s", it.Number, it.Title))
	}
	return out
}

func TestHTTPServer_Health(t *testing.T) {
	ts := testserver.New(t)

	resp := do(t, ts, "", http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "ok", string(resp.Body))
}

func TestHTTPServer_Authentication(t *testing.T) {
	ts := testserver.New(t)
	ts.CreateProject(t, "P1")

	resp := do(t, ts, "", http.MethodGet, "/api/projects", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.Status)

	resp = do(t, ts, "not-a-token", http.MethodGet, "/api/projects", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.Status)

	viewer := ts.IssueToken(t, access.RoleViewer)
	resp = do(t, ts, viewer, http.MethodGet, "/api/projects/P1/items", "", nil)
	require.Equal(t, http.StatusOK, resp.Status)

	resp = do(t, ts, viewer, http.MethodPost, "/api/projects/P1/items", "application/json",
		strings.NewReader(`{"number":1,"title":"a","content":"b","detail":"c"}`))
	require.Equal(t, http.StatusForbidden, resp.Status)
	require.Equal(t, "FORBIDDEN", errorCode(t, resp))

	editor := ts.IssueToken(t, access.RoleEditor)
	resp = do(t, ts, editor, http.MethodDelete, "/api/projects/P1", "", nil)
	require.Equal(t, http.StatusForbidden, resp.Status)
}

func TestHTTPServer_WithoutAuth(t *testing.T) {
	ts := testserver.New(t, testserver.WithoutAuth())
	ts.CreateProject(t, "P1")

	resp := do(t, ts, "", http.MethodGet, "/api/projects/P1/items", "", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.JSONEq(t, `[]`, string(resp.Body))
}

func TestHTTPServer_ProjectLifecycle(t *testing.T) {
	ts := testserver.New(t)

	resp := doJSON(t, ts, http.MethodPost, "/api/projects", map[string]string{"key": "JOB_1", "name": "Job one"})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))

	resp = doJSON(t, ts, http.MethodPost, "/api/projects", map[string]string{"key": "JOB_1"})
	require.Equal(t, http.StatusConflict, resp.Status)

	resp = doJSON(t, ts, http.MethodPost, "/api/projects", map[string]string{"key": "bad key"})
	require.Equal(t, http.StatusBadRequest, resp.Status)

	saveItem(t, ts, "JOB_1", 4, "a")
	resp = doJSON(t, ts, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	summaries := decode[[]struct {
		Key           string `json:"key"`
		ItemCount     int    `json:"item_count"`
		HighestNumber int    `json:"highest_number"`
	}](t, resp)
	require.Len(t, summaries, 1)
	require.Equal(t, 1, summaries[0].ItemCount)
	require.Equal(t, 4, summaries[0].HighestNumber)

	resp = doJSON(t, ts, http.MethodDelete, "/api/projects/JOB_1", nil)
	require.Equal(t, http.StatusNoContent, resp.Status)

	resp = doJSON(t, ts, http.MethodGet, "/api/projects/JOB_1", nil)
	require.Equal(t, http.StatusNotFound, resp.Status)
}

func TestHTTPServer_InsertShiftsHigherItems(t *testing.T) {
	ts := testserver.New(t)
	ts.CreateProject(t, "P1")

	saveItem(t, ts, "P1", 1, "a")
	saveItem(t, ts, "P1", 2, "b")
	saveItem(t, ts, "P1", 3, "c")
	saveItem(t, ts, "P1", 2, "new")

	require.Equal(t, []string{"1:a", "2:new", "3:b", "4:c"}, listState(t, ts, "P1"))
}

func TestHTTPServer_UpdateAndDelete(t *testing.T) {
	ts := testserver.New(t)
	ts.CreateProject(t, "P1")

	a := saveItem(t, ts, "P1", 1, "a")
	saveItem(t, ts, "P1", 2, "b")

	resp := doJSON(t, ts, http.MethodPut, "/api/projects/P1/items/"+a.ID, map[string]any{
		"number": 2, "title": "a2", "content": "x", "detail": "y",
	})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	require.Equal(t, []string{"2:a2", "3:b"}, listState(t, ts, "P1"))

	resp = doJSON(t, ts, http.MethodGet, "/api/projects/P1/items/"+a.ID, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "a2", decode[item.Item](t, resp).Title)

	resp = doJSON(t, ts, http.MethodDelete, "/api/projects/P1/items/"+a.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.Status)
	require.Equal(t, []string{"3:b"}, listState(t, ts, "P1"))

	resp = doJSON(t, ts, http.MethodGet, "/api/projects/P1/items/"+a.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.Status)
	require.Equal(t, "NOT_FOUND", errorCode(t, resp))

	resp = doJSON(t, ts, http.MethodDelete, "/api/projects/P1/items", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.JSONEq(t, `{"count":1}`, string(resp.Body))
	require.Empty(t, listState(t, ts, "P1"))
}

func TestHTTPServer_RejectsBadInput(t *testing.T) {
	ts := testserver.New(t)
	ts.CreateProject(t, "P1")

	tests := []struct {
		name    string
		path    string
		payload any
		status  int
		code    string
	}{
		{"zero number", "/api/projects/P1/items", map[string]any{"number": 0, "title": "a", "content": "b", "detail": "c"}, http.StatusBadRequest, "INVALID_NUMBER"},
		{"fractional number", "/api/projects/P1/items", map[string]any{"number": 2.5, "title": "a", "content": "b", "detail": "c"}, http.StatusBadRequest, "INVALID_NUMBER"},
		{"text number", "/api/projects/P1/items", map[string]any{"number": "two", "title": "a", "content": "b", "detail": "c"}, http.StatusBadRequest, "INVALID_NUMBER"},
		{"missing title", "/api/projects/P1/items", map[string]any{"number": 1, "title": " ", "content": "b", "detail": "c"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"unknown project", "/api/projects/NOPE/items", map[string]any{"number": 1, "title": "a", "content": "b", "detail": "c"}, http.StatusNotFound, "NOT_FOUND"},
		{"not json", "/api/projects/P1/items", "just a string", http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, ts, http.MethodPost, tt.path, tt.payload)
			require.Equal(t, tt.status, resp.Status, string(resp.Body))
			require.Equal(t, tt.code, errorCode(t, resp))
		})
	}
	require.Empty(t, listState(t, ts, "P1"))
}

func TestHTTPServer_RenumberAndActivity(t *testing.T) {
	ts := testserver.New(t)
	ts.CreateProject(t, "P1")

	saveItem(t, ts, "P1", 3, "a")
	saveItem(t, ts, "P1", 7, "b")

	resp := doJSON(t, ts, http.MethodPost, "/api/projects/P1/renumber", nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	res := decode[item.RenumberResult](t, resp)
	require.True(t, res.Changed)
	require.Equal(t, item.Range{Min: 3, Max: 7}, res.Before)
	require.Equal(t, item.Range{Min: 1, Max: 2}, res.After)
	require.Equal(t, []string{"1:a", "2:b"}, listState(t, ts, "P1"))

	resp = doJSON(t, ts, http.MethodGet, "/api/projects/P1/activity?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	entries := decode[[]struct {
		Type string `json:"type"`
	}](t, resp)
	require.Len(t, entries, 1)
	require.Equal(t, "items_renumbered", entries[0].Type)
}

func TestHTTPServer_ExportImport(t *testing.T) {
	ts := testserver.New(t)
	ts.CreateProject(t, "SRC")
	ts.CreateProject(t, "DST")

	saveItem(t, ts, "SRC", 1, "first, with comma")
	saveItem(t, ts, "SRC", 5, "second")

	resp := do(t, ts, ts.Token, http.MethodGet, "/api/projects/SRC/export", "", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	table := string(resp.Body)
	require.True(t, strings.HasPrefix(table, "number,title,content,detail\r\n"), table)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("csvfile", "src.csv")
	require.NoError(t, err)
	_, err = part.Write(resp.Body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp = do(t, ts, ts.Token, http.MethodPost, "/api/projects/DST/import", mw.FormDataContentType(), &form)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	require.JSONEq(t, `{"count":2}`, string(resp.Body))
	require.Equal(t, listState(t, ts, "SRC"), listState(t, ts, "DST"))

	// Same table again collides with every row; nothing changes.
	resp = do(t, ts, ts.Token, http.MethodPost, "/api/projects/DST/import", "text/csv", strings.NewReader(table))
	require.Equal(t, http.StatusConflict, resp.Status)
	require.Equal(t, "DUPLICATE_IN_BATCH", errorCode(t, resp))
	require.Len(t, listState(t, ts, "DST"), 2)

	resp = do(t, ts, ts.Token, http.MethodPost, "/api/projects/DST/import", "text/csv",
		strings.NewReader("number,title,content,detail\n9,a,b,c\n9,d,e,f\n"))
	require.Equal(t, http.StatusConflict, resp.Status)

	resp = do(t, ts, ts.Token, http.MethodPost, "/api/projects/DST/import", "text/csv",
		strings.NewReader("num,title,content,detail\n9,a,b,c\n"))
	require.Equal(t, http.StatusBadRequest, resp.Status)
	require.Equal(t, "VALIDATION_FAILED", errorCode(t, resp))
	require.Len(t, listState(t, ts, "DST"), 2)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHTTPServer_Images(t *testing.T) {
	ts := testserver.New(t)
	ts.CreateProject(t, "P1")

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	require.NoError(t, mw.WriteField("number", "1"))
	require.NoError(t, mw.WriteField("title", "with image"))
	require.NoError(t, mw.WriteField("content", "c"))
	require.NoError(t, mw.WriteField("detail", "d"))
	part, err := mw.CreateFormFile("images", "big.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes(t, 500, 400))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := do(t, ts, ts.Token, http.MethodPost, "/api/projects/P1/items", mw.FormDataContentType(), &form)
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	it := decode[item.Item](t, resp)
	require.Len(t, it.Images, 1)

	// Stored files are normalized before the item is written.
	resp = do(t, ts, "", http.MethodGet, "/images/"+it.Images[0], "", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	cfg, err := png.DecodeConfig(bytes.NewReader(resp.Body))
	require.NoError(t, err)
	require.LessOrEqual(t, cfg.Width*cfg.Height, 100_000)

	resp = doJSON(t, ts, http.MethodDelete, "/api/projects/P1/items/"+it.ID+"/images/5", nil)
	require.Equal(t, http.StatusNotFound, resp.Status)

	resp = doJSON(t, ts, http.MethodDelete, "/api/projects/P1/items/"+it.ID+"/images/0", nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	require.Empty(t, decode[item.Item](t, resp).Images)

	resp = do(t, ts, "", http.MethodGet, "/images/"+it.Images[0], "", nil)
	require.Equal(t, http.StatusNotFound, resp.Status)
}

func TestHTTPServer_RejectsNonImageUpload(t *testing.T) {
	ts := testserver.New(t)
	ts.CreateProject(t, "P1")
	saved := saveItem(t, ts, "P1", 1, "a")

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("images", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := do(t, ts, ts.Token, http.MethodPost, "/api/projects/P1/items/"+saved.ID+"/images", mw.FormDataContentType(), &form)
	require.Equal(t, http.StatusBadRequest, resp.Status, string(resp.Body))
	require.Equal(t, "VALIDATION_FAILED", errorCode(t, resp))
}

func TestHTTPServer_IssueToken(t *testing.T) {
	ts := testserver.New(t)

	resp := doJSON(t, ts, http.MethodPost, "/api/tokens", map[string]string{"subject": "bob", "role": "viewer", "ttl": "10m"})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	issued := decode[struct {
		Token string `json:"token"`
	}](t, resp)
	require.NotEmpty(t, issued.Token)

	resp = do(t, ts, issued.Token, http.MethodGet, "/api/projects", "", nil)
	require.Equal(t, http.StatusOK, resp.Status)

	resp = doJSON(t, ts, http.MethodPost, "/api/tokens", map[string]string{"subject": "bob", "role": "owner"})
	require.Equal(t, http.StatusBadRequest, resp.Status)
}
