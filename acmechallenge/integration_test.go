package acmechallenge

import (
	"testing"
	"time"

	"github.com/letsencrypt/challtestsrv"
	"github.com/miekg/dns"

	"github.com/cert-ops/acmeclient/acmeorder"
)

// TestDNS01AgainstChallTestSrv runs the dns-01 record derivation against
// an in-process validation server rather than a hand-rolled DNS fake, then
// queries it with a real DNS client to confirm the TXT record this
// package computes is exactly what a validating CA would see on the wire.
func TestDNS01AgainstChallTestSrv(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network-binding integration test in -short mode")
	}

	const dnsAddr = "127.0.0.1:45353"
	srv, err := challtestsrv.New(challtestsrv.Config{
		DNSOneAddrs: []string{dnsAddr},
	})
	if err != nil {
		t.Fatalf("challtestsrv.New: %v", err)
	}
	srv.Run()
	defer srv.Shutdown()

	authz := testAuthz(t)
	ref := acmeorder.ChallengeRef{Type: "dns-01", URL: "https://ca.example/chall/integration", Token: "tok-integration"}
	ch, err := New(ref, authz)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d, ok := ch.(*DNS01)
	if !ok {
		t.Fatalf("expected *DNS01, got %T", ch)
	}

	fqdn := RecordNameDNS01("example.com")
	value := d.RecordValue()
	srv.AddDNSOneChallenge(fqdn, value)
	defer srv.DeleteDNSOneChallenge(fqdn)

	client := &dns.Client{Timeout: 2 * time.Second}
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, dns.TypeTXT)

	var resp *dns.Msg
	for attempt := 0; attempt < 10; attempt++ {
		resp, _, err = client.Exchange(msg, dnsAddr)
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("querying challtestsrv: %v", err)
	}

	var got string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok && len(txt.Txt) > 0 {
			got = txt.Txt[0]
		}
	}
	if got != value {
		t.Errorf("TXT record = %q, want %q", got, value)
	}
}
