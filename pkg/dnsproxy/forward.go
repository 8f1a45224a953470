package dnsproxy

import (
	"log/slog"

	"github.com/miekg/dns"
)

// Forwarder relays queries for non-blocked names to the configured upstream
// resolvers, trying each in order until one answers.
type Forwarder struct {
	upstreams []string
	client    *dns.Client
	log       *slog.Logger
}

// NewForwarder creates a Forwarder over the given upstream addresses.
func NewForwarder(upstreams []string, log *slog.Logger) *Forwarder {
	return &Forwarder{
		upstreams: upstreams,
		client:    new(dns.Client),
		log:       log,
	}
}

// Forward sends the query to the upstreams in order and returns the first
// successful response.
func (f *Forwarder) Forward(r *dns.Msg) (*dns.Msg, error) {
	var msg *dns.Msg
	var err error

	for _, server := range f.upstreams {
		msg, _, err = f.client.Exchange(r, server)
		if err == nil {
			return msg, nil
		}
		f.log.Warn("upstream query failed, trying next server", "server", server, "error", err)
	}

	return nil, err
}
