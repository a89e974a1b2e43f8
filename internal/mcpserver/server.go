package mcpserver

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/marcus-ai/marcus/internal/coordinator"
)

// Request is the control protocol's inbound envelope (spec §6).
type Request struct {
	Tool      ToolName        `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// Response is the control protocol's outbound envelope: exactly one of
// Value or Error is set.
type Response struct {
	OK    bool            `json:"ok"`
	Value interface{}     `json:"value,omitempty"`
	Error *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the wire shape of a coordinator.Error (spec §6 "Error
// shape").
type ResponseError struct {
	Kind      coordinator.ErrorKind `json:"kind"`
	Message   string                `json:"message"`
	Retriable bool                  `json:"retriable"`
}

// Server is the control protocol's HTTP transport: one POST endpoint
// dispatching {tool, arguments} through the static Registry.
type Server struct {
	registry *Registry
	log      *log.Logger
}

// NewServer builds a Server wired to coord's operations.
func NewServer(coord *coordinator.Coordinator) *Server {
	return &Server{
		registry: buildRegistry(coord),
		log:      log.New(os.Stderr, "[MCPSERVER] ", log.LstdFlags),
	}
}

// RegisterRoutes mounts the control protocol endpoint on r.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/call", s.handleCall).Methods(http.MethodPost)
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, &ResponseError{Kind: coordinator.KindMalformedInput, Message: "failed to read request body"})
		return
	}
	defer r.Body.Close()

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, &ResponseError{Kind: coordinator.KindMalformedInput, Message: "malformed JSON envelope"})
		return
	}

	handler, ok := s.registry.Lookup(req.Tool)
	if !ok {
		s.writeError(w, http.StatusBadRequest, &ResponseError{Kind: coordinator.KindMalformedInput, Message: "unknown tool: " + string(req.Tool)})
		return
	}

	value, err := handler(r.Context(), req.Arguments)
	if err != nil {
		s.writeHandlerError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, Response{OK: true, Value: value})
}

func (s *Server) writeHandlerError(w http.ResponseWriter, err error) {
	cerr, ok := err.(*coordinator.Error)
	if !ok {
		s.log.Printf("unclassified error from handler: %v", err)
		s.writeError(w, http.StatusInternalServerError, &ResponseError{Kind: coordinator.KindInternal, Message: err.Error()})
		return
	}
	s.writeError(w, httpStatusFor(cerr.Kind), &ResponseError{
		Kind:      cerr.Kind,
		Message:   cerr.Message,
		Retriable: cerr.Retriable,
	})
}

func httpStatusFor(kind coordinator.ErrorKind) int {
	switch kind {
	case coordinator.KindNotFound:
		return http.StatusNotFound
	case coordinator.KindMalformedInput, coordinator.KindMalformedDecision:
		return http.StatusBadRequest
	case coordinator.KindConflict, coordinator.KindAlreadyAssigned, coordinator.KindNoWork, coordinator.KindLeaseExpired:
		return http.StatusConflict
	case coordinator.KindTimeout:
		return http.StatusGatewayTimeout
	case coordinator.KindTransientProviderError, coordinator.KindPermanentProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, rerr *ResponseError) {
	s.writeJSON(w, status, Response{OK: false, Error: rerr})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Printf("failed to encode response: %v", err)
	}
}
