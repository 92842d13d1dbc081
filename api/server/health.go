package server

import (
	"net/http"

	"medvault/core/vault"
)

type LivenessResponse struct {
	Alive bool `json:"alive"`
}

type ReadinessResponse struct {
	Ready bool `json:"ready"`
}

type NodeHealthResponse struct {
	Status  string      `json:"status"`
	Metrics NodeMetrics `json:"metrics"`
}

// StatusResponse is served on /v1/status.
type StatusResponse struct {
	Status     string       `json:"status"`
	Version    string       `json:"version"`
	APIVersion string       `json:"api_version"`
	Vault      vault.Status `json:"vault"`
	Metrics    NodeMetrics  `json:"metrics"`
}

// NodeLiveness reports whether vault state can be read at all.
func (s *Server) NodeLiveness() bool {
	_, err := s.vault.Initialized()
	return err == nil
}

// NodeReadiness reports whether the vault accepts operations.
func (s *Server) NodeReadiness() bool {
	ok, err := s.vault.Initialized()
	return err == nil && ok
}

func healthStatus(m NodeMetrics) string {
	if !m.Initialized {
		return "initializing"
	}
	return "healthy"
}

func (s *Server) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	alive := s.NodeLiveness()
	code := http.StatusOK
	if !alive {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, LivenessResponse{Alive: alive})
}

func (s *Server) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ready := s.NodeReadiness()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, ReadinessResponse{Ready: ready})
}

func (s *Server) HandleNodeHealth(w http.ResponseWriter, r *http.Request) {
	m := s.GetNodeMetrics()
	writeJSON(w, http.StatusOK, NodeHealthResponse{Status: healthStatus(m), Metrics: m})
}

func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.vault.Status()
	if err != nil {
		s.writeError(w, err)
		return
	}
	m := s.GetNodeMetrics()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:     healthStatus(m),
		Version:    NodeVersion(),
		APIVersion: APIVersion(),
		Vault:      st,
		Metrics:    m,
	})
}
