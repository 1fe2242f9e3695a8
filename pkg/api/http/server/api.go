// Package server implements the thrift-surface's REST stand-in: a thin
// HTTP transport over pkg/api.API. Session authentication and admin
// capability checks are external collaborators (spec.md Non-goals); this
// server trusts whatever sits in front of it for that.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"

	"github.com/voidshard/igor/pkg/api"
	"github.com/voidshard/igor/pkg/api/http/common"
	"github.com/voidshard/igor/pkg/structs"
)

const wait = 30 * time.Second

// Server serves pkg/api.API over HTTP.
type Server struct {
	addr  string
	debug bool

	svc        api.API
	exit       chan os.Signal
	httpserver *http.Server
}

// NewServer builds a Server bound to addr.
func NewServer(addr string, debug bool) *Server {
	return &Server{addr: addr, debug: debug, exit: make(chan os.Signal, 1)}
}

// ServeForever blocks, serving svc until an interrupt is received.
func (s *Server) ServeForever(svc api.API) error {
	s.svc = svc

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.Health).Methods(http.MethodGet)
	router.HandleFunc(common.API_TASKS, s.Tasks).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc(common.API_TASKS_ASSIGN, s.AssignTask).Methods(http.MethodPatch)
	router.HandleFunc(common.API_TASKS_STATE, s.ChangeState).Methods(http.MethodPatch)
	router.HandleFunc(common.API_TASKS_KILL, s.KillTasks).Methods(http.MethodPatch)
	router.HandleFunc(common.API_UPDATES, s.RegisterUpdate).Methods(http.MethodPost)
	router.HandleFunc(common.API_UPDATES_SHARDS, s.ModifyShards).Methods(http.MethodPatch)
	router.HandleFunc(common.API_UPDATES_FINISH, s.FinishUpdate).Methods(http.MethodPost)

	if s.debug {
		router.Use(loggingMiddleware)
	}

	s.httpserver = &http.Server{
		Handler:      router,
		Addr:         s.addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	go func() {
		if err := s.httpserver.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	signal.Notify(s.exit, os.Interrupt)
	defer s.Close()
	<-s.exit

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return s.httpserver.Shutdown(ctx)
}

// Close stops ServeForever's wait loop.
func (s *Server) Close() error {
	s.exit <- os.Interrupt
	return nil
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJson(w, map[string]bool{"ok": true})
}

func (s *Server) Tasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getTasks(w, r)
	case http.MethodPost:
		s.insertTasks(w, r)
	}
}

func (s *Server) getTasks(w http.ResponseWriter, r *http.Request) {
	q := &structs.Query{}
	if err := unmarshalQuery(w, r, q); err != nil {
		return
	}
	tasks, err := s.svc.FetchTasks(q)
	if err != nil {
		http.Error(w, err.Error(), mapError(err))
		return
	}
	writeJson(w, tasks)
}

func (s *Server) insertTasks(w http.ResponseWriter, r *http.Request) {
	req := &structs.InsertTasksRequest{}
	if err := unmarshalJson(w, r, req); err != nil {
		return
	}
	ids, err := s.svc.InsertTasks(req.Tasks)
	if err != nil {
		http.Error(w, err.Error(), mapError(err))
		return
	}
	writeJson(w, &structs.InsertTasksResponse{TaskIds: ids})
}

func (s *Server) AssignTask(w http.ResponseWriter, r *http.Request) {
	req := &structs.AssignTaskRequest{}
	if err := unmarshalJson(w, r, req); err != nil {
		return
	}
	assigned, err := s.svc.AssignTask(req.TaskId, req.SlaveId, req.Host, req.GrantedPorts)
	if err != nil {
		http.Error(w, err.Error(), mapError(err))
		return
	}
	writeJson(w, assigned)
}

func (s *Server) ChangeState(w http.ResponseWriter, r *http.Request) {
	req := &structs.ChangeStateRequest{}
	if err := unmarshalJson(w, r, req); err != nil {
		return
	}
	n, err := s.svc.ChangeState(req.Query, req.Target, req.AuditMsg)
	if err != nil {
		http.Error(w, err.Error(), mapError(err))
		return
	}
	writeJson(w, &structs.ChangeStateResponse{Updated: n})
}

func (s *Server) KillTasks(w http.ResponseWriter, r *http.Request) {
	req := &structs.KillTasksRequest{}
	if err := unmarshalJson(w, r, req); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	if err := s.svc.KillTasks(ctx, req.Query, req.Identity); err != nil {
		http.Error(w, err.Error(), mapError(err))
		return
	}
	writeJson(w, map[string]bool{"ok": true})
}

func (s *Server) RegisterUpdate(w http.ResponseWriter, r *http.Request) {
	req := &structs.RegisterUpdateRequest{}
	if err := unmarshalJson(w, r, req); err != nil {
		return
	}
	token, err := s.svc.RegisterUpdate(req.JobKey, req.NewConfigs)
	if err != nil {
		http.Error(w, err.Error(), mapError(err))
		return
	}
	writeJson(w, &structs.RegisterUpdateResponse{UpdateToken: token})
}

func (s *Server) ModifyShards(w http.ResponseWriter, r *http.Request) {
	req := &structs.ModifyShardsRequest{}
	if err := unmarshalJson(w, r, req); err != nil {
		return
	}
	result, err := s.svc.ModifyShards(req.Identity, req.JobKey, req.Shards, req.Token, req.Updating)
	if err != nil {
		http.Error(w, err.Error(), mapError(err))
		return
	}
	writeJson(w, result)
}

func (s *Server) FinishUpdate(w http.ResponseWriter, r *http.Request) {
	req := &structs.FinishUpdateRequest{}
	if err := unmarshalJson(w, r, req); err != nil {
		return
	}
	ok, err := s.svc.FinishUpdate(req.Identity, req.JobKey, req.Token, req.Result, req.ThrowIfMissing)
	if err != nil {
		http.Error(w, err.Error(), mapError(err))
		return
	}
	writeJson(w, &structs.FinishUpdateResponse{Finished: ok})
}
