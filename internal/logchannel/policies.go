package logchannel

import "strings"

// LevelFilterPolicy drops any entry below Threshold. It is the simplest
// possible policy: pure accept/drop, no mutation.
type LevelFilterPolicy struct {
	Threshold Severity
}

func (p *LevelFilterPolicy) Name() string { return "level-filter" }

func (p *LevelFilterPolicy) Apply(entry *Entry) bool {
	return entry.Severity >= p.Threshold
}

// RedactPolicy scrubs watch values whose symbol matches one of Symbols,
// replacing the value in place. It never drops an entry; it only
// transforms it, demonstrating the mutate-and-continue half of the policy
// contract.
type RedactPolicy struct {
	Symbols     []string
	Replacement string
}

func (p *RedactPolicy) Name() string { return "redact" }

func (p *RedactPolicy) Apply(entry *Entry) bool {
	if len(p.Symbols) == 0 {
		return true
	}
	replacement := p.Replacement
	if replacement == "" {
		replacement = "[REDACTED]"
	}
	for i := range entry.Watches {
		for _, sym := range p.Symbols {
			if strings.EqualFold(entry.Watches[i].Symbol, sym) {
				entry.Watches[i].Value = replacement
			}
		}
	}
	return true
}
