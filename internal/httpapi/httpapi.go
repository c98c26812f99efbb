// Package httpapi implements the admin HTTP surface (spec §6): one route
// per enumerated method, bearer/sg-token auth, and the {code,message,data}
// envelope. Dispatch is modeled as two flat method-name -> closure maps per
// spec §9's design note, avoiding any back-reference from handlers into the
// scheduler/cache construction (composition root wires everything forward).
// Grounded on the teacher's infrastructure/middleware (gorilla/mux router +
// wrapped-ResponseWriter status capture + trace-id middleware pattern).
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rosteleset/falprs-go/internal/errs"
	"github.com/rosteleset/falprs-go/internal/logging"
	"github.com/rosteleset/falprs-go/internal/metrics"
)

// envelope is the success response wrapper (spec §6: "success-with-content
// responses wrap data as {code, message, data}").
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// VoidHandler performs a side effect and returns no content (204).
type VoidHandler func(ctx ctx) error

// DataHandler performs a side effect and returns JSON data.
type DataHandler func(ctx ctx) (any, error)

// ctx carries one request's resolved tenant/body/path params to a handler
// closure.
type ctx struct {
	req     *http.Request
	idGroup int32
	sGroup  int32 // 0 unless authenticated via an sg token
	body    json.RawMessage
}

func (c ctx) Context() context.Context { return c.req.Context() }

// bind decodes the request body into dst.
func (c ctx) bind(dst any) error {
	if len(c.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.body, dst); err != nil {
		return errs.BadRequest("malformed request body")
	}
	return nil
}

// TokenAuth resolves a bearer token to a tenant id.
type TokenAuth interface {
	Lookup(token string) (int32, bool)
}

// SGroupAuth resolves an sg token to a special group (id + tenant).
type SGroupAuth interface {
	ByTokenIDs(token string) (idGroup, idSGroup int32, ok bool)
}

// Server routes admin HTTP requests to the dispatch tables.
type Server struct {
	router        *mux.Router
	tokens        TokenAuth
	sgroups       SGroupAuth
	log           *logging.Logger
	voidMethods   map[string]VoidHandler
	dataMethods   map[string]DataHandler
	sgVoidMethods map[string]VoidHandler
	sgDataMethods map[string]DataHandler
}

func NewServer(tokens TokenAuth, sgroups SGroupAuth, log *logging.Logger) *Server {
	s := &Server{
		tokens: tokens, sgroups: sgroups, log: log,
		voidMethods: map[string]VoidHandler{}, dataMethods: map[string]DataHandler{},
		sgVoidMethods: map[string]VoidHandler{}, sgDataMethods: map[string]DataHandler{},
	}
	s.router = mux.NewRouter()
	s.router.Use(s.traceMiddleware, s.metricsMiddleware)
	s.router.PathPrefix("/sg").HandlerFunc(s.serveSG)
	s.router.PathPrefix("/").HandlerFunc(s.serve)
	return s
}

func (s *Server) Router() http.Handler { return s.router }

// RegisterVoid wires a no-content (204) method.
func (s *Server) RegisterVoid(method string, h VoidHandler) { s.voidMethods[method] = h }

// RegisterData wires a success-with-content method.
func (s *Server) RegisterData(method string, h DataHandler) { s.dataMethods[method] = h }

// RegisterSGVoid/RegisterSGData wire the "sg" namespace (spec §6: "a
// separate 'sg' namespace... authenticates with a special-group token").
func (s *Server) RegisterSGVoid(method string, h VoidHandler) { s.sgVoidMethods[method] = h }
func (s *Server) RegisterSGData(method string, h DataHandler) { s.sgDataMethods[method] = h }

func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set("X-Trace-ID", traceID)
		next.ServeHTTP(w, r)
	})
}

type statusCapture struct {
	http.ResponseWriter
	status int
}

func (c *statusCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		metrics.ObserveHTTP(r.Method, http.StatusText(wrapped.status), time.Since(start))
	})
}

func methodFromPath(prefix, path string) string {
	if len(path) <= len(prefix) {
		return ""
	}
	m := path[len(prefix):]
	if len(m) > 0 && m[0] == '/' {
		m = m[1:]
	}
	return m
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	method := methodFromPath("/", r.URL.Path)
	idGroup, ok := s.authenticate(r)
	if !ok {
		writeErr(w, errs.Unauthorized("missing or invalid bearer token"))
		return
	}
	body, _ := readBody(r)
	c := ctx{req: r, idGroup: idGroup, body: body}

	if h, ok := s.voidMethods[method]; ok {
		if err := h(c); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if h, ok := s.dataMethods[method]; ok {
		data, err := h(c)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, data)
		return
	}
	writeErr(w, errs.NotFound("unknown method: "+method))
}

func (s *Server) serveSG(w http.ResponseWriter, r *http.Request) {
	method := methodFromPath("/sg", r.URL.Path)
	token := bearerToken(r)
	idGroup, idSGroup, ok := s.sgroups.ByTokenIDs(token)
	if !ok {
		writeErr(w, errs.Unauthorized("missing or invalid sg token"))
		return
	}
	body, _ := readBody(r)
	c := ctx{req: r, idGroup: idGroup, sGroup: idSGroup, body: body}

	if h, ok := s.sgVoidMethods[method]; ok {
		if err := h(c); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if h, ok := s.sgDataMethods[method]; ok {
		data, err := h(c)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, data)
		return
	}
	writeErr(w, errs.NotFound("unknown sg method: "+method))
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func (s *Server) authenticate(r *http.Request) (int32, bool) {
	return s.tokens.Lookup(bearerToken(r))
}

func readBody(r *http.Request) (json.RawMessage, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope{Code: 0, Message: "ok", Data: data})
}

// writeErr surfaces BadRequest/Unauthorized/NotFound with their own status
// codes and folds every other kind, Persistence included, into a 500. It
// does not log the error.
func writeErr(w http.ResponseWriter, err error) {
	e, ok := errs.As(err)
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{"externalBody": e.Message})
}
