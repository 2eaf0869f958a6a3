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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/waypoint/pkg/event"
)

// keepAliveInterval spaces comment lines that keep idle streams open
// through proxies.
const keepAliveInterval = 15 * time.Second

// handleEvents streams bus events as server-sent events. Query parameters
// workflow, conversation and type (comma separated) narrow the stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}

	sub := s.rt.Bus().Subscribe(eventFilter(r))
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				s.logger.Warn("Failed to encode event", "type", e.Type, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()
		}
	}
}

func eventFilter(r *http.Request) event.Filter {
	q := r.URL.Query()
	var filters []event.Filter
	if wf := q.Get("workflow"); wf != "" {
		filters = append(filters, event.ForWorkflow(wf))
	}
	if id := q.Get("conversation"); id != "" {
		filters = append(filters, event.ForConversation(id))
	}
	if raw := q.Get("type"); raw != "" {
		var types []event.Type
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, event.Type(t))
			}
		}
		filters = append(filters, event.ForTypes(types...))
	}
	return event.All(filters...)
}
