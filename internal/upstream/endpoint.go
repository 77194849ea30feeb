package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Endpoint is one base URL template plus the static headers it needs.
// Templates may carry {name} placeholders filled in by EndpointSet.Expand.
type Endpoint struct {
	URL    string
	Header http.Header
}

// EndpointSet is tried in order: primary first, then fallbacks/proxies.
type EndpointSet []Endpoint

// NewEndpointSet validates and returns the ordered set.
func NewEndpointSet(endpoints ...Endpoint) (EndpointSet, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("at least one endpoint is required")
	}
	set := make(EndpointSet, 0, len(endpoints))
	for i, ep := range endpoints {
		raw := strings.TrimSpace(ep.URL)
		if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
			return nil, fmt.Errorf("endpoint %d: url %q must be http(s)", i, ep.URL)
		}
		set = append(set, Endpoint{URL: strings.TrimRight(raw, "/"), Header: ep.Header.Clone()})
	}
	return set, nil
}

// APIKeyHeader returns a header carrying a static API key, or nil when key is empty.
func APIKeyHeader(name, key string) http.Header {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(key) == "" {
		return nil
	}
	h := http.Header{}
	h.Set(name, key)
	return h
}

// Expand substitutes {name} placeholders in every template.
func (s EndpointSet) Expand(vars map[string]string) EndpointSet {
	if len(vars) == 0 {
		return s
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	out := make(EndpointSet, len(s))
	for i, ep := range s {
		out[i] = Endpoint{URL: r.Replace(ep.URL), Header: ep.Header}
	}
	return out
}

func (e Endpoint) join(suffix string) string {
	if suffix == "" {
		return e.URL
	}
	return e.URL + "/" + strings.TrimLeft(suffix, "/")
}
