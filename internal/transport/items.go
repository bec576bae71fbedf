package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rpggio/dsheet/internal/domain/item"
)

type saveItemRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Detail  string `json:"detail"`
}

type countResponse struct {
	Count int `json:"count"`
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.items.List(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.items.Get(r.Context(), chi.URLParam(r, "key"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// handleSaveItem serves both create (POST) and update (PUT). The body is
// JSON, or a multipart form with the same fields plus "images" files.
func (s *Server) handleSaveItem(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeSaveItem(w, r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	req.ID = chi.URLParam(r, "id")

	it, err := s.items.Upsert(r.Context(), chi.URLParam(r, "key"), req)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	status := http.StatusOK
	if req.ID == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, it)
}

func (s *Server) decodeSaveItem(w http.ResponseWriter, r *http.Request) (item.UpsertRequest, error) {
	if !isMultipart(r) {
		var body saveItemRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&body); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) && typeErr.Field == "number" {
				return item.UpsertRequest{}, fmt.Errorf("%w: number must be an integer, got %s", item.ErrInvalidNumber, typeErr.Value)
			}
			return item.UpsertRequest{}, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		return item.UpsertRequest{
			Number: body.Number,
			Fields: item.Fields{Title: body.Title, Content: body.Content, Detail: body.Detail},
		}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return item.UpsertRequest{}, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	number, err := strconv.Atoi(r.FormValue("number"))
	if err != nil {
		return item.UpsertRequest{}, fmt.Errorf("%w: %q is not a number", item.ErrInvalidNumber, r.FormValue("number"))
	}
	uploads, err := readUploads(r.MultipartForm, "images")
	if err != nil {
		return item.UpsertRequest{}, err
	}
	return item.UpsertRequest{
		Number: number,
		Fields: item.Fields{
			Title:   r.FormValue("title"),
			Content: r.FormValue("content"),
			Detail:  r.FormValue("detail"),
		},
		Images: uploads,
	}, nil
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.items.Delete(r.Context(), chi.URLParam(r, "key"), chi.URLParam(r, "id")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.items.DeleteAll(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *Server) handleAttachImages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	uploads, err := readUploads(r.MultipartForm, "images")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if len(uploads) == 0 {
		writeError(w, s.logger, fmt.Errorf("%w: no images in form", errBadRequest))
		return
	}

	it, err := s.items.AttachImages(r.Context(), chi.URLParam(r, "key"), chi.URLParam(r, "id"), uploads)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: image index must be an integer", errBadRequest))
		return
	}
	it, err := s.items.RemoveImage(r.Context(), chi.URLParam(r, "key"), chi.URLParam(r, "id"), index)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleRenumber(w http.ResponseWriter, r *http.Request) {
	res, err := s.items.Renumber(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.items.Sweep(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	// Buffered so a failure part way through still gets an error status.
	var buf bytes.Buffer
	if _, err := s.items.Export(r.Context(), key, &buf); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, key))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleImport accepts the table as the raw body or as the "csvfile" part
// of a multipart form.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var src io.Reader = r.Body
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxImportBytes); err != nil {
			writeError(w, s.logger, fmt.Errorf("%w: %w", errBadRequest, err))
			return
		}
		file, _, err := r.FormFile("csvfile")
		if err != nil {
			writeError(w, s.logger, fmt.Errorf("%w: csvfile: %w", errBadRequest, err))
			return
		}
		defer file.Close()
		src = file
	}

	n, err := s.items.Import(r.Context(), chi.URLParam(r, "key"), src)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func readUploads(form *multipart.Form, field string) ([]item.Upload, error) {
	if form == nil {
		return nil, nil
	}
	headers := form.File[field]
	uploads := make([]item.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("opening upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading upload %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, item.Upload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}
