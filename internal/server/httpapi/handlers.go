package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/server/api"
	"github.com/dmitrijs2005/datakeeper/internal/server/auth"
	"github.com/dmitrijs2005/datakeeper/internal/server/models"
	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handleUpsert(w http.ResponseWriter, r *http.Request) {
	cred, _ := auth.CredentialFrom(r.Context())

	var req api.UpsertRequest
	if err := api.Decode(r.Body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.backend.Upsert(r.Context(), cred, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleRead(w http.ResponseWriter, r *http.Request) {
	cred, _ := auth.CredentialFrom(r.Context())

	var req api.ReadRequest
	if err := api.Decode(r.Body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.backend.Read(r.Context(), cred, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleStoreFiles(w http.ResponseWriter, r *http.Request) {
	cred, _ := auth.CredentialFrom(r.Context())
	documentType := chi.URLParam(r, "documentType")

	files, err := readUploads(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.backend.StoreFiles(r.Context(), cred, documentType, files)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleListFiles(w http.ResponseWriter, r *http.Request) {
	cred, _ := auth.CredentialFrom(r.Context())

	resp, err := s.backend.ListFiles(r.Context(), cred, chi.URLParam(r, "documentType"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleDispatchJob(w http.ResponseWriter, r *http.Request) {
	cred, _ := auth.CredentialFrom(r.Context())

	var req api.JobRequest
	if err := api.Decode(r.Body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.backend.DispatchJob(r.Context(), cred, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// readUploads accepts multipart "files" parts or a JSON body.
func readUploads(r *http.Request) ([]models.FileInput, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: content type: %w", common.ErrMalformedRequest, err)
	}

	switch mediaType {
	case "application/json":
		var req api.StoreFilesRequest
		if err := api.Decode(r.Body, &req); err != nil {
			return nil, err
		}
		return api.Uploads(req.Files), nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", common.ErrMalformedRequest, err)
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		parts := r.MultipartForm.File["files"]
		out := make([]models.FileInput, 0, len(parts))
		for _, fh := range parts {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("%w: %w", common.ErrMalformedRequest, err)
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return nil, fmt.Errorf("%w: %w", common.ErrMalformedRequest, err)
			}
			out = append(out, models.FileInput{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", common.ErrMalformedRequest, mediaType)
	}
}
