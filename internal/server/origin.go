package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// originPolicy decides which browser origins may open a WebSocket. Entries
// are either exact origins ("https://chat.example.com"), glob patterns
// ("https://*.example.com", "http://localhost:*") or "*" for any origin.
type originPolicy struct {
	exact    map[string]struct{}
	patterns []string
	allowAll bool
	log      zerolog.Logger
}

func newOriginPolicy(origins []string, log zerolog.Logger) *originPolicy {
	p := &originPolicy{
		exact: make(map[string]struct{}, len(origins)),
		log:   log,
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
		case trimmed == "*":
			p.allowAll = true
		case strings.ContainsAny(trimmed, "*?[{"):
			if !doublestar.ValidatePattern(trimmed) {
				log.Warn().Str("origin", origin).Msg("ignoring invalid origin pattern in configuration")
				continue
			}
			p.patterns = append(p.patterns, strings.ToLower(trimmed))
		default:
			normalized, ok := normalizeOrigin(trimmed)
			if !ok {
				log.Warn().Str("origin", origin).Msg("ignoring invalid origin in configuration")
				continue
			}
			p.exact[normalized] = struct{}{}
		}
	}

	return p
}

// validateOriginPattern reports a configured origin that can never match.
func validateOriginPattern(origin string) error {
	switch {
	case origin == "*":
		return nil
	case strings.ContainsAny(origin, "*?[{"):
		if !doublestar.ValidatePattern(origin) {
			return fmt.Errorf("origin pattern %q is not a valid glob", origin)
		}
		return nil
	default:
		if _, ok := normalizeOrigin(origin); !ok {
			return fmt.Errorf("origin %q must include a scheme and host", origin)
		}
		return nil
	}
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (p *originPolicy) allowed(origin string) bool {
	if origin == "" {
		return false
	}

	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}

	if p.allowAll {
		return true
	}

	if _, exists := p.exact[normalized]; exists {
		return true
	}

	for _, pattern := range p.patterns {
		if ok, _ := doublestar.Match(pattern, normalized); ok {
			return true
		}
	}
	return false
}

// checkOrigin is the upgrader's CheckOrigin hook.
func (p *originPolicy) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if p.allowed(origin) {
		return true
	}

	p.log.Warn().Str("origin", origin).Msg("blocked WebSocket connection from disallowed origin")
	return false
}
