package api

import (
	"fmt"
	"net/http"

	"github.com/dreamware/zboard/internal/widget"
)

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req widgetRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	cmd, err := req.create()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var created widget.Widget
	err = s.withRetry(r.Context(), func() error {
		var err error
		created, err = s.svc.Create(r.Context(), cmd)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req widgetRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	cmd, err := req.update()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var updated widget.Widget
	err = s.withRetry(r.Context(), func() error {
		var err error
		updated, err = s.svc.Update(r.Context(), id, cmd)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	found, ok, err := s.svc.Fetch(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, widget.NotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var removed widget.Widget
	err = s.withRetry(r.Context(), func() error {
		var err error
		removed, err = s.svc.Delete(r.Context(), id)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removed)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ws, err := s.svc.List(r.Context(), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// areaRequest is the wire form of an area filter
type areaRequest struct {
	LowerLeft  *widget.Point `json:"lowerLeft"`
	UpperRight *widget.Point `json:"upperRight"`
}

func (s *Server) handleInArea(w http.ResponseWriter, r *http.Request) {
	var req areaRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.LowerLeft == nil || req.UpperRight == nil {
		s.fail(w, r, invalid(fmt.Errorf("lowerLeft and upperRight are required")))
		return
	}

	ws, err := s.svc.FilterInArea(r.Context(), widget.Area{LowerLeft: *req.LowerLeft, UpperRight: *req.UpperRight})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
