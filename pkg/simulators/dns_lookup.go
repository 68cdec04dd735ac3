package simulators

import (
	"context"
	"fmt"
	"strings"

	"github.com/trapline-sec/trapline/pkg/models"
)

type dnsZone struct {
	domain  string
	records map[string][]string
}

// dnsZones is the fictional internal DNS. Order matters: suffix matching
// walks the table top to bottom, so the apex zone wins ambiguous lookups.
var dnsZones = []dnsZone{
	{
		domain: "corp.internal",
		records: map[string][]string{
			"A":  {"10.0.1.1"},
			"MX": {"10 mail.corp.internal."},
			"TXT": {
				`"v=spf1 ip4:10.0.0.0/16 -all"`,
				`"v=DKIM1; k=rsa; p=MIGfMA0GCSqGSIb3DQEBAQUAA4GNA..."`,
			},
			"SRV": {
				"_kerberos._tcp.corp.internal. 0 100 88 dc01.corp.internal.",
				"_ldap._tcp.corp.internal. 0 100 389 dc01.corp.internal.",
			},
			"CNAME": {},
		},
	},
	{domain: "web-frontend-01.corp.internal", records: map[string][]string{"A": {"10.0.1.10"}}},
	{domain: "api-gateway-01.corp.internal", records: map[string][]string{"A": {"10.0.1.20"}}},
	{domain: "db-primary-01.corp.internal", records: map[string][]string{"A": {"10.0.1.30"}}},
	{domain: "cache-01.corp.internal", records: map[string][]string{"A": {"10.0.1.40"}}},
	{domain: "worker-01.corp.internal", records: map[string][]string{"A": {"10.0.1.50"}}},
	{
		domain: "mail.corp.internal",
		records: map[string][]string{
			"A":  {"10.0.2.10"},
			"MX": {"10 mail.corp.internal."},
		},
	},
	{
		domain: "dc01.corp.internal",
		records: map[string][]string{
			"A": {"10.0.3.10"},
			"SRV": {
				"_kerberos._tcp.corp.internal. 0 100 88 dc01.corp.internal.",
				"_ldap._tcp.corp.internal. 0 100 389 dc01.corp.internal.",
			},
		},
	},
	{domain: "k8s.corp.internal", records: map[string][]string{"A": {"10.0.4.10"}}},
	{domain: "vault.corp.internal", records: map[string][]string{"A": {"10.0.5.10"}}},
	{domain: "registry.corp.internal", records: map[string][]string{"A": {"10.0.6.10"}}},
	{domain: "ns1.corp.internal", records: map[string][]string{"A": {"10.0.0.2"}}},
}

// DNSLookupSimulator fabricates dig-style resolution output for the
// fictional corp.internal zone.
type DNSLookupSimulator struct{}

// NewDNSLookupSimulator creates the dns_lookup simulator.
func NewDNSLookupSimulator() *DNSLookupSimulator {
	return &DNSLookupSimulator{}
}

func (d *DNSLookupSimulator) Name() string { return "dns_lookup" }

func (d *DNSLookupSimulator) Description() string {
	return "Resolve DNS records for a domain (A, MX, TXT, SRV, CNAME)."
}

func (d *DNSLookupSimulator) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"domain": map[string]any{
				"type":        "string",
				"description": "Domain name to resolve",
			},
			"query_type": map[string]any{
				"type":        "string",
				"enum":        []string{"A", "MX", "TXT", "SRV", "CNAME"},
				"description": "DNS record type (default: A)",
			},
		},
		"required": []string{"domain"},
	}
}

func (d *DNSLookupSimulator) Simulate(ctx context.Context, args map[string]any, sess *models.SessionContext) Result {
	domain := stringArg(args, "domain", "")
	queryType := strings.ToUpper(stringArg(args, "query_type", "A"))

	var records map[string][]string
	for _, zone := range dnsZones {
		if zone.domain == domain {
			records = zone.records
			break
		}
	}
	if records == nil {
		for _, zone := range dnsZones {
			if strings.HasSuffix(domain, zone.domain) || strings.HasSuffix(zone.domain, domain) {
				records = zone.records
				domain = zone.domain
				break
			}
		}
	}

	if records == nil {
		return Result{
			Output: ";; ->>HEADER<<- opcode: QUERY, status: NXDOMAIN\n" +
				";; QUESTION SECTION:\n" +
				fmt.Sprintf(";%s.\t\tIN\t%s\n", domain, queryType) +
				"\n;; Query time: 2 msec\n" +
				";; SERVER: 10.0.0.2#53(ns1.corp.internal)\n",
			EscalationDelta: 1,
		}
	}

	typeRecords := records[queryType]

	lines := []string{
		fmt.Sprintf("; <<>> dig 9.18.18 <<>> %s %s", domain, queryType),
		";; ->>HEADER<<- opcode: QUERY, status: NOERROR",
		";; QUESTION SECTION:",
		fmt.Sprintf(";%s.\t\tIN\t%s", domain, queryType),
		"",
		";; ANSWER SECTION:",
	}

	if len(typeRecords) > 0 {
		for _, rec := range typeRecords {
			lines = append(lines, fmt.Sprintf("%s.\t300\tIN\t%s\t%s", domain, queryType, rec))
		}
	} else {
		lines = append(lines, fmt.Sprintf(";; (no %s records found)", queryType))
	}

	lines = append(lines,
		"",
		";; Query time: 1 msec",
		";; SERVER: 10.0.0.2#53(ns1.corp.internal)",
		";; WHEN: Wed Jan 15 14:35:00 UTC 2025")

	if queryType == "A" {
		for _, ip := range typeRecords {
			sess.AddHost(ip)
		}
	}

	return Result{Output: strings.Join(lines, "\n"), EscalationDelta: 1}
}
