package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"nudger/internal/domain"
	"nudger/internal/queue"
	"nudger/internal/tasks"
)

const actorHeader = "X-Actor"

// FeedWriter records the group activity the aggregation reads.
type FeedWriter interface {
	PutUser(ctx context.Context, u domain.User) error
	AddAction(ctx context.Context, a domain.GroupAction) (string, error)
}

type Server struct {
	r       *chi.Mux
	repo    queue.Store
	factory *tasks.Factory
	feed    FeedWriter
	gate    Gate
}

func NewServer(repo queue.Store, factory *tasks.Factory, feed FeedWriter, gate Gate) http.Handler {
	return NewServerWithDebug(repo, factory, feed, gate, false)
}

func NewServerWithDebug(repo queue.Store, factory *tasks.Factory, feed FeedWriter, gate Gate, enableDebug bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	if gate == nil {
		gate = AllowAll{}
	}
	s := &Server{r: r, repo: repo, factory: factory, feed: feed, gate: gate}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/tasks/one-time", s.createOneTime)
		r.Post("/tasks/planned", s.createPlanned)
		r.Post("/tasks/recurring", s.createRecurring)
		r.Get("/tasks", s.listTasks)
		r.Get("/tasks/{id}", s.getTask)
		r.Post("/tasks/{id}/cancel", s.cancelTask)
		r.Post("/users", s.putUser)
		r.Post("/groups/{groupID}/actions", s.addGroupAction)
	})

	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	counts, err := s.repo.CountByStatus(r.Context())
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "# TYPE nudger_tasks gauge")
	for _, st := range []domain.Status{domain.StatusScheduled, domain.StatusComplete, domain.StatusError} {
		fmt.Fprintf(w, "nudger_tasks{status=%q} %d\n", st, counts[st])
	}
	fmt.Fprintln(w, "nudger_up 1")
}

type createOneTimeReq struct {
	Owner     string            `json:"owner"`
	PerformAt time.Time         `json:"performAt"`
	Title     domain.Text       `json:"title"`
	Body      *domain.Text      `json:"body"`
	Event     string            `json:"event"`
	Extra     map[string]string `json:"extra"`
}

type createPlannedReq struct {
	Owner     string            `json:"owner"`
	StartDate time.Time         `json:"startDate"`
	Steps     []domain.Step     `json:"steps"`
	Extra     map[string]string `json:"extra"`
}

type createRecurringReq struct {
	Owner          string            `json:"owner"`
	FirstPerformAt time.Time         `json:"firstPerformAt"`
	Title          domain.Text       `json:"title"`
	Body           *domain.Text      `json:"body"`
	Event          string            `json:"event"`
	Interval       int               `json:"interval"`
	Pace           domain.Pace       `json:"pace"`
	Extra          map[string]string `json:"extra"`
}

type createResp struct {
	ID string `json:"id"`
}

func (s *Server) createOneTime(w http.ResponseWriter, r *http.Request) {
	var req createOneTimeReq
	if !s.decodeFor(w, r, &req, func() string { return req.Owner }) {
		return
	}
	if req.Title.IsZero() {
		http.Error(w, "title is required", 400)
		return
	}
	id, err := s.factory.CreateOneTime(r.Context(), req.Owner, req.PerformAt,
		domain.OneTimePayload{Title: req.Title, Body: req.Body, Event: req.Event}, req.Extra)
	s.created(w, id, err)
}

func (s *Server) createPlanned(w http.ResponseWriter, r *http.Request) {
	var req createPlannedReq
	if !s.decodeFor(w, r, &req, func() string { return req.Owner }) {
		return
	}
	id, err := s.factory.CreatePlanned(r.Context(), req.Owner, req.StartDate, req.Steps, req.Extra)
	s.created(w, id, err)
}

func (s *Server) createRecurring(w http.ResponseWriter, r *http.Request) {
	var req createRecurringReq
	if !s.decodeFor(w, r, &req, func() string { return req.Owner }) {
		return
	}
	id, err := s.factory.CreateRecurring(r.Context(), req.Owner, req.FirstPerformAt, domain.RecurringPayload{
		Title: req.Title, Body: req.Body, Event: req.Event, Interval: req.Interval, Pace: req.Pace,
	}, req.Extra)
	s.created(w, id, err)
}

// decodeFor decodes the body into v and runs the gate on the owner it names.
func (s *Server) decodeFor(w http.ResponseWriter, r *http.Request, v any, owner func() string) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), 400)
		return false
	}
	if o := owner(); o != "" && !s.gate.Allow(r.Context(), r.Header.Get(actorHeader), o) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (s *Server) created(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, tasks.ErrNoSteps), errors.Is(err, tasks.ErrUnknownPace), errors.Is(err, tasks.ErrBadInterval):
		http.Error(w, err.Error(), 400)
	case err != nil:
		http.Error(w, err.Error(), 500)
	case id == "":
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusAccepted, createResp{ID: id})
	}
}

type taskResp struct {
	ID            string            `json:"id"`
	Owner         string            `json:"owner"`
	Kind          domain.Kind       `json:"kind"`
	Status        domain.Status     `json:"status"`
	PerformAt     string            `json:"performAt"`
	CurrentIndex  int               `json:"currentIndex"`
	Payload       json.RawMessage   `json:"payload"`
	ErrorMessages []string          `json:"errorMessages"`
	Extra         map[string]string `json:"extra,omitempty"`
	CreatedAt     string            `json:"createdAt"`
	UpdatedAt     string            `json:"updatedAt"`
}

func toResp(t domain.Task) taskResp {
	errs := t.ErrorMessages
	if errs == nil {
		errs = []string{}
	}
	return taskResp{
		ID:            t.ID,
		Owner:         t.Owner,
		Kind:          t.Kind,
		Status:        t.Status,
		PerformAt:     t.PerformAt.Format(time.RFC3339),
		CurrentIndex:  t.CurrentIndex,
		Payload:       t.Payload,
		ErrorMessages: errs,
		Extra:         t.Extra,
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     t.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, queue.ErrNotFound) {
		http.Error(w, "not found", 404)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, toResp(t))
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	list, err := s.repo.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	out := make([]taskResp, 0, len(list))
	for _, t := range list {
		out = append(out, toResp(t))
	}
	writeJSON(w, 200, out)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
	}
	err := s.repo.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		http.Error(w, "not found", 404)
	case errors.Is(err, queue.ErrNotScheduled):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), 500)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type userReq struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

func (s *Server) putUser(w http.ResponseWriter, r *http.Request) {
	var req userReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.UID == "" {
		http.Error(w, "uid is required", 400)
		return
	}
	if err := s.feed.PutUser(r.Context(), domain.User{UID: req.UID, Name: req.Name, Language: req.Language}); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type groupActionReq struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Creator   string    `json:"creator"`
	ViewerIDs []string  `json:"viewerIds"`
	Created   time.Time `json:"created"`
}

func (s *Server) addGroupAction(w http.ResponseWriter, r *http.Request) {
	var req groupActionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.Type == "" || req.Creator == "" {
		http.Error(w, "type and creator are required", 400)
		return
	}
	id, err := s.feed.AddAction(r.Context(), domain.GroupAction{
		ID:        req.ID,
		GroupID:   chi.URLParam(r, "groupID"),
		Type:      req.Type,
		Creator:   req.Creator,
		ViewerIDs: req.ViewerIDs,
		Created:   req.Created,
	})
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusCreated, createResp{ID: id})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
