package hubapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vikashloomba/mcp-session-hub/pkg/mcphub"
)

const maxBodyBytes = 1 << 20

type connectRequest struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type promptRequest struct {
	Arguments map[string]string `json:"arguments"`
}

type promptResponse struct {
	Text string `json:"text"`
}

type contentResponse struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
	IsBlob   bool   `json:"is_blob"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Endpoints())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	req.URL = strings.TrimSpace(req.URL)
	if err := s.hub.Connect(r.Context(), req.ID, req.URL, s.opts.Completion, s.opts.Input); err != nil {
		s.writeHubError(w, err)
		return
	}
	for _, info := range s.hub.Endpoints() {
		if info.ID == req.ID {
			writeJSON(w, http.StatusCreated, info)
			return
		}
	}
	writeJSON(w, http.StatusCreated, mcphub.EndpointInfo{ID: req.ID, URL: req.URL})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.hub.Disconnect(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisconnectAll(w http.ResponseWriter, r *http.Request) {
	s.hub.DisconnectAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.hub.ListResources(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resources)
}

func (s *Server) handleReadResource(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("uri query parameter is required"))
		return
	}
	content, err := s.hub.ReadResource(r.Context(), r.PathValue("id"), uri)
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	resp := contentResponse{URI: content.URI, MIMEType: content.MIMEType, IsBlob: content.IsBlob()}
	if blob, ok := content.Blob(); ok {
		resp.Blob = base64.StdEncoding.EncodeToString(blob)
	} else {
		resp.Text, _ = content.Text()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.hub.ListPrompts(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prompts)
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	text, err := s.hub.GetPrompt(r.Context(), r.PathValue("id"), r.PathValue("name"), req.Arguments)
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{Text: text})
}

func (s *Server) writeHubError(w http.ResponseWriter, err error) {
	var connErr *mcphub.ConnectError
	switch {
	case errors.Is(err, mcphub.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, mcphub.ErrInvalidEndpoint):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &connErr):
		s.writeError(w, http.StatusBadGateway, err)
	default:
		s.opts.Logger.Error("hub request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
