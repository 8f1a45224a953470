// Package dnsproxy is the secondary enforcement path: a local resolver that
// answers NXDOMAIN for names covered by the effective target set and forwards
// everything else upstream. It reuses the policy view so blocking decisions
// never diverge from the hosts file path.
package dnsproxy

import (
	"log/slog"
	"strconv"

	"github.com/miekg/dns"

	"focusguard/pkg/policy"
	"focusguard/pkg/version"
)

const maxMsgSize = 512

// Server is a UDP DNS proxy enforcing the current block policy.
type Server struct {
	server    *dns.Server
	mux       *dns.ServeMux
	cache     *Cache
	forwarder *Forwarder
	view      *policy.View
	log       *slog.Logger
}

// New constructs a Server listening on addr, forwarding to upstreams.
func New(addr string, upstreams []string, view *policy.View, log *slog.Logger) *Server {
	mux := dns.NewServeMux()
	s := &Server{
		server:    &dns.Server{Addr: addr, Net: "udp", Handler: mux},
		mux:       mux,
		cache:     NewCache(log),
		forwarder: NewForwarder(upstreams, log),
		view:      view,
		log:       log,
	}
	mux.HandleFunc(".", s.handleRequest)
	return s
}

// Handler exposes the request handler for serving on an external listener.
func (s *Server) Handler() dns.Handler { return s.mux }

// Start blocks serving DNS requests until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("starting DNS proxy", "version", version.FocusguardVersion, "address", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.server.Shutdown()
}

// ClearCache drops cached responses, used after policy changes.
func (s *Server) ClearCache() {
	s.cache.Clear()
}

func (s *Server) handleRequest(w dns.ResponseWriter, r *dns.Msg) {
	if len(r.Question) == 0 {
		msg := new(dns.Msg)
		msg.SetRcode(r, dns.RcodeFormatError)
		s.writeResponse(w, msg)
		return
	}
	q := r.Question[0]

	s.log.Debug("received query", "name", q.Name, "type", q.Qtype, "id", r.Id, "client", w.RemoteAddr())

	// The blocking decision comes before the cache so a freshly blocked
	// name cannot be served from an earlier cached answer.
	if s.view.EffectiveTargetSet().Matches(q.Name) {
		s.log.Info("refusing query for blocked domain", "name", q.Name)
		msg := new(dns.Msg)
		msg.SetRcode(r, dns.RcodeNameError)
		msg.Authoritative = true
		s.writeResponse(w, msg)
		return
	}

	cacheKey := q.Name + strconv.Itoa(int(q.Qtype))
	if cached, found := s.cache.Get(cacheKey); found {
		s.log.Debug("cache hit", "name", q.Name)
		response := cached.Copy()
		response.Id = r.Id
		response.RecursionAvailable = true
		s.writeResponse(w, response)
		return
	}

	msg, err := s.forwarder.Forward(r)
	if err != nil {
		s.log.Error("all upstream servers failed", "name", q.Name, "error", err)
		failure := new(dns.Msg)
		failure.SetRcode(r, dns.RcodeServerFailure)
		s.writeResponse(w, failure)
		return
	}

	s.cache.Set(cacheKey, msg)
	s.writeResponse(w, msg)
}

func (s *Server) writeResponse(w dns.ResponseWriter, msg *dns.Msg) {
	if size := msg.Len(); size > maxMsgSize {
		msg.Truncated = true
		s.log.Debug("response too large, truncating", "size", size, "max", maxMsgSize)
		for msg.Len() > maxMsgSize && len(msg.Answer) > 0 {
			msg.Answer = msg.Answer[:len(msg.Answer)-1]
		}
	}
	if err := w.WriteMsg(msg); err != nil {
		s.log.Error("failed to write DNS response", "error", err)
	}
}
