package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vbonduro/diamondinv/internal/domain"
	"github.com/vbonduro/diamondinv/internal/service"
	"github.com/vbonduro/diamondinv/internal/views"
)

const maxBodySize = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"hydrated": s.service.State().Hydrated,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.State())
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Options())
}

type addPersonRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (s *Server) handleAddPerson(w http.ResponseWriter, r *http.Request) {
	var req addPersonRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	p, err := s.service.AddPerson(req.Name, req.Phone)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListKapaans(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, s.service.ListKapaans(f))
}

// parseFilter reads the kapaan table filter from the query string. kapaanNo
// may repeat; personId "all" means every person.
func parseFilter(r *http.Request) (views.Filter, error) {
	q := r.URL.Query()
	f := views.Filter{
		PersonID: strings.TrimSpace(q.Get("personId")),
		DateFrom: strings.TrimSpace(q.Get("from")),
		DateTo:   strings.TrimSpace(q.Get("to")),
		Query:    strings.TrimSpace(q.Get("q")),
	}
	if f.PersonID == "all" {
		f.PersonID = ""
	}
	for _, no := range q["kapaanNo"] {
		if no = strings.TrimSpace(no); no != "" {
			f.KapaanNos = append(f.KapaanNos, no)
		}
	}

	var err error
	if f.MinWeight, err = parseWeight(q.Get("minWeight"), "minWeight"); err != nil {
		return views.Filter{}, err
	}
	if f.MaxWeight, err = parseWeight(q.Get("maxWeight"), "maxWeight"); err != nil {
		return views.Filter{}, err
	}
	return f, nil
}

func parseWeight(raw, name string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.New("invalid " + name)
	}
	return &v, nil
}

func (s *Server) handleAddKapaan(w http.ResponseWriter, r *http.Request) {
	var in domain.NewKapaan
	if !s.decodeJSON(w, r, &in) {
		return
	}
	k, err := s.service.AddKapaan(in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, k)
}

func (s *Server) handleUpdateKapaan(w http.ResponseWriter, r *http.Request) {
	var patch domain.KapaanPatch
	if !s.decodeJSON(w, r, &patch) {
		return
	}
	if err := s.service.UpdateKapaan(r.PathValue("id"), patch); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveKapaan succeeds whether or not the kapaan existed.
func (s *Server) handleRemoveKapaan(w http.ResponseWriter, r *http.Request) {
	s.service.RemoveKapaan(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleKapaanReceives(w http.ResponseWriter, r *http.Request) {
	detail, err := s.service.KapaanDetail(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleAddReceive(w http.ResponseWriter, r *http.Request) {
	var in domain.NewReceive
	if !s.decodeJSON(w, r, &in) {
		return
	}
	in.KapaanID = r.PathValue("id")
	rcv, err := s.service.AddReceive(in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rcv)
}

func (s *Server) handleRemoveReceive(w http.ResponseWriter, r *http.Request) {
	s.service.RemoveReceive(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	defer closeWithLog(body, "request body", s.logger)

	if err := json.NewDecoder(body).Decode(v); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body required"
		}
		http.Error(w, msg, http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response failed", "error", err)
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrMissingField), errors.Is(err, service.ErrInvalidField):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
