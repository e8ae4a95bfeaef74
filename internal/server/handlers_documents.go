package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/storage"
	"github.com/sirupsen/logrus"
)

// uploadField is the multipart form field carrying the file.
const uploadField = "file"

// documentResponse is returned after an upload; URL carries a cache-busting parameter.
type documentResponse struct {
	URL string `json:"url"`
}

// readUpload returns the uploaded bytes and the client file name. It accepts
// multipart/form-data with a "file" field or a raw body named by ?filename=.
func readUpload(r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, storage.MaxDocumentSize+1<<20)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile(uploadField)
		if err != nil {
			return "", nil, uploadReadError(err)
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, storage.MaxDocumentSize+1))
		if err != nil {
			return "", nil, uploadReadError(err)
		}
		return header.Filename, data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, storage.MaxDocumentSize+1))
	if err != nil {
		return "", nil, uploadReadError(err)
	}
	return r.URL.Query().Get("filename"), data, nil
}

func uploadReadError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return &storage.ErrTooLarge{Size: int(tooBig.Limit)}
	}
	return &ErrValidation{Field: uploadField, Message: "could not read upload"}
}

// upload stores a document and persists its URL through save.
func (s *Server) upload(w http.ResponseWriter, r *http.Request, purpose storage.Purpose, save func(ctx context.Context, ownerID uuid.UUID, url string) error) {
	ownerID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.documents == nil {
		s.writeError(w, r, &ErrStorageDisabled{})
		return
	}

	filename, data, err := readUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(data) == 0 {
		s.writeError(w, r, &ErrValidation{Field: uploadField, Message: "required"})
		return
	}
	filename = strings.TrimSpace(filename)

	url, err := s.documents.Replace(r.Context(), purpose, ownerID, filename, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := save(r.Context(), ownerID, url); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.log.WithFields(logrus.Fields{
		"owner_id": ownerID,
		"purpose":  purpose,
		"bytes":    len(data),
	}).Info("document uploaded")
	s.jsonResponse(w, http.StatusOK, documentResponse{URL: storage.CacheBust(url, s.now())})
}

// remove deletes a document and clears its stored URL.
func (s *Server) remove(w http.ResponseWriter, r *http.Request, purpose storage.Purpose, save func(ctx context.Context, ownerID uuid.UUID, url string) error) {
	ownerID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.documents == nil {
		s.writeError(w, r, &ErrStorageDisabled{})
		return
	}

	if err := s.documents.Remove(r.Context(), purpose, ownerID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := save(r.Context(), ownerID, ""); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadCV(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, storage.PurposeCV, s.store.SetCVURL)
}

func (s *Server) handleDeleteCV(w http.ResponseWriter, r *http.Request) {
	s.remove(w, r, storage.PurposeCV, s.store.SetCVURL)
}

func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, storage.PurposeAvatar, s.store.SetAvatarURL)
}

func (s *Server) handleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	s.remove(w, r, storage.PurposeAvatar, s.store.SetAvatarURL)
}

// handleUploadLogo stores the company logo under the owner's folder
func (s *Server) handleUploadLogo(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, storage.PurposeLogo, s.store.SetCompanyLogo)
}
