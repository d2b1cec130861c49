package sites

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fairscope-hq/expo-harvester/pkg/fetchclient"
)

// parserRegistry implements ParserRegistry.
type parserRegistry struct {
	parsersByID   map[string]Parser
	parsersByType map[string]Parser
	mu            sync.RWMutex
}

// NewParserRegistry builds a registry with optional type-based parsers and
// site-specific parsers keyed by site id.
func NewParserRegistry(typeParsers map[string]Parser, parsers map[string]Parser) ParserRegistry {
	reg := &parserRegistry{
		parsersByID:   make(map[string]Parser),
		parsersByType: make(map[string]Parser),
	}

	for id, p := range parsers {
		reg.register(reg.parsersByID, id, p)
	}
	for typ, p := range typeParsers {
		reg.register(reg.parsersByType, typ, p)
	}

	return reg
}

func (r *parserRegistry) register(m map[string]Parser, key string, p Parser) {
	if p == nil {
		return
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return
	}

	r.mu.Lock()
	m[key] = p
	r.mu.Unlock()
}

// ParserFor selects the parser for the given site based on its id or type.
func (r *parserRegistry) ParserFor(site Site) (Parser, error) {
	if r == nil {
		return nil, fmt.Errorf("parser registry is nil")
	}
	if strings.TrimSpace(site.ID) == "" {
		return nil, fmt.Errorf("site id is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	idKey := strings.ToLower(strings.TrimSpace(site.ID))
	if p, ok := r.parsersByID[idKey]; ok {
		return p, nil
	}

	typeKey := strings.ToLower(strings.TrimSpace(site.Type))
	if typeKey != "" {
		if p, ok := r.parsersByType[typeKey]; ok {
			return p, nil
		}
	}

	return nil, fmt.Errorf("no parser registered for site %q (type %q)", site.ID, site.Type)
}

// DefaultParserRegistry wires up known site parsers.
func DefaultParserRegistry(fetcher *fetchclient.Fetcher) ParserRegistry {
	if fetcher == nil {
		fetcher = fetchclient.NewFetcher(nil, fetchclient.Options{})
	}

	typeParsers := map[string]Parser{
		SiteTypeKielce: NewKielceParser(fetcher),
	}

	return NewParserRegistry(typeParsers, nil)
}
