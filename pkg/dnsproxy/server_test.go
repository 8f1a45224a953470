package dnsproxy

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/spf13/afero"

	"focusguard/internal/testutil"
	"focusguard/pkg/policy"
)

func newTestProxy(t *testing.T, upstreams []string) (*Server, *policy.FileStore) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := policy.NewFileStore(afero.NewMemMapFs(), "/var/lib/focusguard/policy.json", log)
	if err != nil {
		t.Fatalf("policy store: %v", err)
	}
	return New("127.0.0.1:0", upstreams, policy.NewView(store), log), store
}

func query(t *testing.T, addr, name string, qtype uint16) *dns.Msg {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	client := &dns.Client{Timeout: 2 * time.Second}
	resp, _, err := client.Exchange(m, addr)
	if err != nil {
		t.Fatalf("exchange %s: %v", name, err)
	}
	return resp
}

func TestBlockedNameGetsNXDOMAIN(t *testing.T) {
	upstream := testutil.StartDNSStub(t, testutil.FixedHandler(nil))
	proxy, _ := newTestProxy(t, []string{upstream.Addr})
	stub := testutil.StartDNSStub(t, proxy.Handler())

	// All categories default to enabled, so facebook.com is covered.
	resp := query(t, stub.Addr, "facebook.com", dns.TypeA)
	if resp.Rcode != dns.RcodeNameError {
		t.Errorf("expected NXDOMAIN for blocked domain, got %s", dns.RcodeToString[resp.Rcode])
	}
}

func TestSubdomainOfBlockedNameGetsNXDOMAIN(t *testing.T) {
	upstream := testutil.StartDNSStub(t, testutil.FixedHandler(nil))
	proxy, _ := newTestProxy(t, []string{upstream.Addr})
	stub := testutil.StartDNSStub(t, proxy.Handler())

	resp := query(t, stub.Addr, "cdn.static.facebook.com", dns.TypeA)
	if resp.Rcode != dns.RcodeNameError {
		t.Errorf("expected NXDOMAIN for blocked subdomain, got %s", dns.RcodeToString[resp.Rcode])
	}
}

func TestUnblockedNameIsForwarded(t *testing.T) {
	upstream := testutil.StartDNSStub(t, testutil.FixedHandler(map[string]testutil.Response{
		testutil.Key("example.org", dns.TypeA): {
			Answers: []dns.RR{testutil.ARecord("example.org", "93.184.216.34")},
		},
	}))
	proxy, _ := newTestProxy(t, []string{upstream.Addr})
	stub := testutil.StartDNSStub(t, proxy.Handler())

	resp := query(t, stub.Addr, "example.org", dns.TypeA)
	if resp.Rcode != dns.RcodeSuccess || len(resp.Answer) != 1 {
		t.Fatalf("expected forwarded answer, got rcode=%s answers=%d", dns.RcodeToString[resp.Rcode], len(resp.Answer))
	}
}

func TestCachedAnswerSurvivesUpstreamLoss(t *testing.T) {
	upstream := testutil.StartDNSStub(t, testutil.FixedHandler(map[string]testutil.Response{
		testutil.Key("example.org", dns.TypeA): {
			Answers: []dns.RR{testutil.ARecord("example.org", "93.184.216.34")},
		},
	}))
	proxy, _ := newTestProxy(t, []string{upstream.Addr})
	stub := testutil.StartDNSStub(t, proxy.Handler())

	if resp := query(t, stub.Addr, "example.org", dns.TypeA); len(resp.Answer) != 1 {
		t.Fatalf("priming query failed: %+v", resp)
	}

	upstream.Close()

	resp := query(t, stub.Addr, "example.org", dns.TypeA)
	if resp.Rcode != dns.RcodeSuccess || len(resp.Answer) != 1 {
		t.Errorf("expected cached answer after upstream loss, got rcode=%s answers=%d",
			dns.RcodeToString[resp.Rcode], len(resp.Answer))
	}
}

func TestFreshlyBlockedNameBypassesCache(t *testing.T) {
	upstream := testutil.StartDNSStub(t, testutil.FixedHandler(map[string]testutil.Response{
		testutil.Key("example.org", dns.TypeA): {
			Answers: []dns.RR{testutil.ARecord("example.org", "93.184.216.34")},
		},
	}))
	proxy, store := newTestProxy(t, []string{upstream.Addr})
	stub := testutil.StartDNSStub(t, proxy.Handler())

	if resp := query(t, stub.Addr, "example.org", dns.TypeA); len(resp.Answer) != 1 {
		t.Fatalf("priming query failed: %+v", resp)
	}

	if err := store.AddCustomDomain("example.org"); err != nil {
		t.Fatalf("add custom: %v", err)
	}

	resp := query(t, stub.Addr, "example.org", dns.TypeA)
	if resp.Rcode != dns.RcodeNameError {
		t.Errorf("expected NXDOMAIN after blocking, got %s", dns.RcodeToString[resp.Rcode])
	}
}

func TestUpstreamFailureReturnsServfail(t *testing.T) {
	proxy, _ := newTestProxy(t, []string{"127.0.0.1:1"})
	stub := testutil.StartDNSStub(t, proxy.Handler())

	resp := query(t, stub.Addr, "example.org", dns.TypeA)
	if resp.Rcode != dns.RcodeServerFailure {
		t.Errorf("expected SERVFAIL when all upstreams fail, got %s", dns.RcodeToString[resp.Rcode])
	}
}
