package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kswings/kswingsd/pkg/deploy"
)

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req deploy.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dep, err := s.Deployer.Create(r.Context(), req)
	if err != nil {
		s.respondDeployError(w, err)
		return
	}

	// acknowledge now; provisioning can take minutes and the panel only
	// needs the container id to start polling state
	respondJSON(w, http.StatusAccepted, dep.Ack())
	go dep.Provision(context.Background(), true)
}

// handleRedeploy covers both redeploy and reinstall; the latter re-runs
// the install scripts against the kept volume.
func (s *Server) handleRedeploy(reinstall bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		var req deploy.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		dep, err := s.Deployer.Redeploy(r.Context(), vars["id"], vars["containerId"], req)
		if err != nil {
			s.respondDeployError(w, err)
			return
		}

		respondJSON(w, http.StatusAccepted, dep.Ack())
		go dep.Provision(context.Background(), reinstall)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Deployer.Delete(r.Context(), id); err != nil {
		s.respondDeployError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Instance deleted"})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req deploy.EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.Deployer.Edit(r.Context(), id, req); err != nil {
		s.respondDeployError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Instance updated"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	volumeID := mux.Vars(r)["volumeId"]

	record, ok, err := s.Store.Get(volumeID)
	if err != nil {
		s.Log.WithError(err).Error("state read failed")
		respondError(w, http.StatusInternalServerError, "could not read state")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "unknown instance")
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	payload, err := s.hostStats(r.Context())
	if err != nil {
		s.Log.WithError(err).Error("host stats failed")
		respondError(w, http.StatusInternalServerError, "could not collect host stats")
		return
	}
	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) respondDeployError(w http.ResponseWriter, err error) {
	if deploy.IsBadRequest(err) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Log.WithError(err).Error("deployment operation failed")
	respondError(w, http.StatusInternalServerError, err.Error())
}
