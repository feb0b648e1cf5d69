package http

import (
	"net/http"

	"cashback/internal/core"
	"cashback/internal/log"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.Get(r.Context())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(st).Write(w)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	patch, err := p.SettingsPatch()
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	st, err := s.settings.Update(r.Context(), patch)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewResponse().JSON(st).Write(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.categories.List(r.Context())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewResponse().JSON(map[string]any{
		"categories": cats,
		"builtin":    core.BuiltinCategories,
	}).Write(w)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	name, err := s.categories.Add(r.Context(), p.Get("name"))
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(map[string]any{"ok": true, "name": name}).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	name := sanitizeInput(r.PathValue("name"))
	if err := s.categories.Delete(r.Context(), name); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewResponse().JSON(map[string]any{"ok": true, "deleted": name}).Write(w)
}
