package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sdisaacson/desktop/internal/archive"
	"github.com/sdisaacson/desktop/internal/auth"
	"github.com/sdisaacson/desktop/internal/filemanager"
	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/protocol"
	"github.com/sdisaacson/desktop/internal/vfs"
)

const maxJSONBody = 1 << 20

// session resolves the widget session of the request, writing an error
// response when it cannot.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*filemanager.Session, bool) {
	p := auth.GetPrincipal(r.Context())
	if p == nil {
		s.sendError(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}
	sess, err := s.sessions.Get(r.Context(), p.UID, chi.URLParam(r, "widgetID"))
	if err != nil {
		logging.WithContext(r.Context()).Error("create session failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "session unavailable")
		return nil, false
	}
	return sess, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// respond writes the session state, or the session's error message when
// the action failed.
func (s *Server) respond(w http.ResponseWriter, sess *filemanager.Session, err error) {
	st := sess.State()
	if err != nil {
		msg := st.Error
		if msg == "" {
			msg = err.Error()
		}
		s.sendError(w, statusFor(err), msg)
		return
	}
	s.sendJSON(w, http.StatusOK, st)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, sess, sess.Refresh(r.Context()))
}

// handleCloseSession forgets the widget's session. Its saved configuration
// is kept, so the next request reopens the same folder.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())
	if p == nil {
		s.sendError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	s.sessions.Drop(p.UID, chi.URLParam(r, "widgetID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req protocol.NavigateRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, sess, sess.Navigate(r.Context(), req.Path))
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req protocol.CreateFolderRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, sess, sess.CreateFolder(r.Context(), req.Name))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.sendError(w, http.StatusBadRequest, "no files in request")
		return
	}

	files := make([]vfs.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "read upload: "+err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "read upload: "+err.Error())
			return
		}
		files = append(files, vfs.UploadFile{Name: fh.Filename, Data: data})
	}

	s.respond(w, sess, sess.Upload(r.Context(), files))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		s.sendError(w, http.StatusBadRequest, "path is required")
		return
	}

	dl, err := sess.Download(r.Context(), sess.Entry(p, false))
	if err != nil {
		s.respond(w, sess, err)
		return
	}
	if dl.URL != "" {
		http.Redirect(w, r, dl.URL, http.StatusFound)
		return
	}
	s.sendAttachment(w, dl)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	pattern := r.URL.Query().Get("pattern")
	entries, err := sess.Search(r.Context(), pattern)
	if err != nil {
		s.respond(w, sess, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.SearchResponse{
		Folder:  sess.CurrentPath(),
		Pattern: pattern,
		Entries: entries,
	})
}

func (s *Server) sendAttachment(w http.ResponseWriter, dl *filemanager.Download) {
	contentType := dl.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(dl.Data).String()
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Name}))
	w.WriteHeader(http.StatusOK)
	w.Write(dl.Data)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req protocol.RenameRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, sess, sess.Rename(r.Context(), sess.Entry(req.Path, req.IsFolder), req.NewName))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req protocol.MoveRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, sess, sess.Move(r.Context(), sess.Entry(req.Path, req.IsFolder), req.Destination))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req protocol.EntryRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, sess, sess.Delete(r.Context(), sess.Entry(req.Path, req.IsFolder)))
}

func (s *Server) handleToggleSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req protocol.EntryRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess.ToggleSelection(sess.Entry(req.Path, req.IsFolder))
	s.respond(w, sess, nil)
}

func (s *Server) handleMoveSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req protocol.SelectionMoveRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, sess, sess.MoveSelection(r.Context(), req.Destination))
}

func (s *Server) handleDeleteSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, sess, sess.DeleteSelection(r.Context()))
}

func (s *Server) handleBuildArchive(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var format archive.Format
	if name := r.URL.Query().Get("format"); name != "" {
		f, err := archive.ByName(name)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, fmt.Sprintf("Create archive failed: %v", err))
			return
		}
		format = f
	}

	dl, err := sess.BuildArchiveAs(r.Context(), format)
	if err != nil {
		s.respond(w, sess, err)
		return
	}
	s.sendAttachment(w, dl)
}

func (s *Server) handleExtractArchive(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, sess, sess.ExtractArchive(r.Context()))
}
