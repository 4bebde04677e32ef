package server

import (
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"sort"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/livecode/internal/errors"
	"github.com/conneroisu/livecode/internal/lesson"
	"github.com/conneroisu/livecode/internal/session"
	"github.com/conneroisu/livecode/internal/snippet"
	"github.com/conneroisu/livecode/internal/version"
)

//go:embed assets
var assets embed.FS

// LessonInfo describes a lesson for the JSON API.
type LessonInfo struct {
	Name        string           `json:"name"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	URL         string           `json:"url"`
	Sections    []string         `json:"sections"`
	Editors     []snippet.Config `json:"editors,omitempty"`
	Loaded      time.Time        `json:"loaded"`
}

func lessonInfo(mod *lesson.Module) LessonInfo {
	sections := make([]string, 0, len(mod.Table))
	for name := range mod.Table {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	return LessonInfo{
		Name:        mod.Name,
		Title:       mod.Title,
		Description: mod.Manifest.Description,
		URL:         "/lessons/" + mod.Name,
		Sections:    sections,
		Editors:     mod.Manifest.DeclaredEditors(),
		Loaded:      mod.Loaded,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	templ.Handler(indexPage(s.store.List())).ServeHTTP(w, r)
}

// handleLesson opens a new session on the lesson and serves its page.
func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !lesson.ValidName(name) {
		http.NotFound(w, r)
		return
	}
	mod, err := s.store.Get(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.creates.Allow() {
		w.Header().Set("Retry-After", "1")
		s.writeJSON(w, r, http.StatusTooManyRequests, map[string]string{"error": "too many new sessions, retry shortly"})
		return
	}

	sess, err := s.sessions.Create(r.Context(), mod)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write([]byte(sess.Page())); err != nil {
		s.logger.Warn(r.Context(), err, "writing lesson page", "lesson", name)
	}
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		s.writeError(w, r, errors.WrapInternal(err, errors.ErrCodeInternalError, "opening embedded assets"))
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.StripPrefix("/static/", http.FileServer(http.FS(sub))).ServeHTTP(w, r)
}

func (s *Server) handleLessons(w http.ResponseWriter, r *http.Request) {
	mods := s.store.List()
	lessons := make([]LessonInfo, 0, len(mods))
	for _, mod := range mods {
		lessons = append(lessons, lessonInfo(mod))
	}

	failures := make(map[string]string)
	for name, err := range s.store.Failures() {
		failures[name] = errors.UserMessage(err)
	}

	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"lessons":  lessons,
		"failures": failures,
	})
}

func (s *Server) handleEditors(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	editors, err := sess.Editors(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if editors == nil {
		editors = []session.EditorInfo{}
	}
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"session": sess.ID(),
		"lesson":  sess.Lesson(),
		"created": sess.Created(),
		"editors": editors,
	})
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	status := "healthy"
	failures := len(s.store.Failures())
	if failures > 0 {
		status = "degraded"
	}

	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    info.Short(),
		"release":    info.IsRelease(),
		"build_info": info,
		"checks": map[string]interface{}{
			"lessons":  map[string]interface{}{"loaded": len(s.store.List()), "failed": failures},
			"sessions": map[string]interface{}{"active": s.sessions.Len()},
			"clients":  map[string]interface{}{"connected": s.ws.Clients()},
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "encoding response", "path", r.URL.Path)
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	if le, ok := errors.AsLivecode(err); ok {
		switch le.Type {
		case errors.ErrorTypeNotFound:
			code = http.StatusNotFound
		case errors.ErrorTypeValidation:
			code = http.StatusBadRequest
		}
	}
	if code == http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, "request failed", "path", r.URL.Path, "context", errors.GetErrorContext(err))
	}
	s.writeJSON(w, r, code, map[string]string{"error": errors.UserMessage(err)})
}
