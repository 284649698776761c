// Package guard holds the defensive utilities consumed by the transaction
// flow and the presentation layer: address poisoning detection and clipboard
// protection.
package guard

import (
	"fmt"
	"strings"
)

// Verdict is the outcome of a poisoning analysis.
type Verdict struct {
	// Safe is true when the address is an exact history match or shows no
	// visual similarity to any history entry.
	Safe bool

	// Reason explains a PotentialPoison verdict in user-facing terms.
	Reason string
}

// PoisoningDetector flags destination addresses that visually imitate an
// address the user has transacted with before. Attackers generate vanity
// addresses sharing the leading and trailing characters of a known
// counterparty and seed them into the victim's history.
//
// This is a heuristic, not a cryptographic guarantee. Non-standard poisoning
// patterns can slip through.
type PoisoningDetector struct {
	prefixLen int
	suffixLen int
}

// NewPoisoningDetector creates a detector comparing the first prefixLen and
// last suffixLen hex characters after the chain marker. Non-positive values
// fall back to the defaults of 6 and 4.
func NewPoisoningDetector(prefixLen, suffixLen int) *PoisoningDetector {
	if prefixLen <= 0 {
		prefixLen = 6
	}
	if suffixLen <= 0 {
		suffixLen = 4
	}
	return &PoisoningDetector{prefixLen: prefixLen, suffixLen: suffixLen}
}

// Analyze checks a target address against the user's known-safe history.
// Exact match means safe. A prefix and suffix match against an entry whose
// full address differs means potential poisoning. No partial match against
// anything means safe but unknown.
func (d *PoisoningDetector) Analyze(target string, safeHistory []string) Verdict {
	normalizedTarget := normalize(target)
	if normalizedTarget == "" {
		return Verdict{Safe: true}
	}

	for _, entry := range safeHistory {
		if normalize(entry) == normalizedTarget {
			return Verdict{Safe: true}
		}
	}

	targetPrefix, targetSuffix, ok := d.edges(normalizedTarget)
	if !ok {
		return Verdict{Safe: true}
	}

	for _, entry := range safeHistory {
		normalized := normalize(entry)
		prefix, suffix, ok := d.edges(normalized)
		if !ok {
			continue
		}
		if prefix == targetPrefix && suffix == targetSuffix {
			return Verdict{
				Safe: false,
				Reason: fmt.Sprintf(
					"address looks visually similar to %s from your history but is a different address",
					abbreviate(entry)),
			}
		}
	}

	return Verdict{Safe: true}
}

// edges returns the comparison prefix and suffix of a normalized address.
func (d *PoisoningDetector) edges(addr string) (string, string, bool) {
	body := strings.TrimPrefix(addr, "0x")
	if len(body) < d.prefixLen+d.suffixLen {
		return "", "", false
	}
	return body[:d.prefixLen], body[len(body)-d.suffixLen:], true
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// abbreviate renders an address the way wallets display it.
func abbreviate(addr string) string {
	if len(addr) <= 13 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-5:]
}
