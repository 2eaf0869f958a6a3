// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/waypoint/pkg/auth"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
	"github.com/kadirpekel/waypoint/pkg/graph"
	"github.com/kadirpekel/waypoint/pkg/interrupt"
	"github.com/kadirpekel/waypoint/pkg/runtime"
	"github.com/kadirpekel/waypoint/pkg/state"
	"github.com/kadirpekel/waypoint/pkg/step"
)

const maxBodyBytes = 1 << 20

// RunRequest is the body of a run call. It may be empty.
type RunRequest struct {
	State state.State `json:"state,omitempty"`
}

// ResumeRequest is the body of a resume call.
type ResumeRequest struct {
	Decision any `json:"decision"`
}

// WorkflowInfo describes one registered workflow.
type WorkflowInfo struct {
	Name  string   `json:"name"`
	Entry string   `json:"entry"`
	Steps []string `json:"steps"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	names := s.rt.Workflows()
	out := make([]WorkflowInfo, 0, len(names))
	for _, name := range names {
		g, err := s.rt.Graph(name)
		if err != nil {
			continue
		}
		def := g.Definition()
		out = append(out, WorkflowInfo{Name: name, Entry: def.Entry, Steps: def.Steps()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": out})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	out, err := s.rt.Run(r.Context(), chi.URLParam(r, "workflow"), chi.URLParam(r, "conversation"), req.State)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	workflow, conversation := chi.URLParam(r, "workflow"), chi.URLParam(r, "conversation")
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		s.logger.Info("Decision received", "workflow", workflow, "conversation", conversation, "reviewer", claims.Subject, "role", claims.Role)
	}
	out, err := s.rt.Resume(r.Context(), workflow, conversation, req.Decision)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	g, err := s.rt.Graph(chi.URLParam(r, "workflow"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cp, err := g.Checkpoint(r.Context(), chi.URLParam(r, "conversation"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.Cancel(r.Context(), chi.URLParam(r, "workflow"), chi.URLParam(r, "conversation")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListInterrupts(w http.ResponseWriter, r *http.Request) {
	points, err := s.rt.ListPending(r.Context(), r.URL.Query().Get("workflow"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if points == nil {
		points = []*interrupt.Point{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interrupts": points})
}

// decodeBody reads a JSON body into v. An empty body is accepted when
// optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return true
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	var fieldErr *state.FieldError
	switch {
	case errors.Is(err, runtime.ErrUnknownWorkflow):
		return http.StatusNotFound, "unknown_workflow"
	case errors.Is(err, checkpoint.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, interrupt.ErrNoPendingInterrupt):
		return http.StatusConflict, "no_pending_interrupt"
	case errors.Is(err, checkpoint.ErrWorkflowMismatch):
		return http.StatusConflict, "workflow_mismatch"
	case errors.Is(err, graph.ErrSuspended):
		return http.StatusConflict, "suspended"
	case errors.Is(err, graph.ErrRecursionLimit):
		return http.StatusUnprocessableEntity, "recursion_limit"
	case errors.Is(err, graph.ErrNoOutgoingEdge):
		return http.StatusUnprocessableEntity, "no_outgoing_edge"
	case errors.Is(err, step.ErrUnknownStep):
		return http.StatusUnprocessableEntity, "unknown_step"
	case errors.As(err, &fieldErr):
		return http.StatusUnprocessableEntity, "invalid_state"
	}
	return http.StatusInternalServerError, ""
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
