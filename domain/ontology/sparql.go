package ontology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/onset-project/onset/pkg/apperror"
	"github.com/onset-project/onset/pkg/logger"
)

// Term is one bound value in a SPARQL result row.
type Term struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Binding is one SPARQL result row, keyed by variable name.
type Binding map[string]Term

// sparqlResponse is the application/sparql-results+json envelope.
type sparqlResponse struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
}

// SPARQLClient issues SELECT queries against a SPARQL HTTP endpoint.
type SPARQLClient struct {
	endpoint string
	prefixes string
	hc       *http.Client
	log      *slog.Logger
}

// standardPrefixes are always prepended so queries can use the usual
// shorthand without repeating the boilerplate.
var standardPrefixes = map[string]string{
	"owl":  "http://www.w3.org/2002/07/owl#",
	"rdf":  "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"rdfs": "http://www.w3.org/2000/01/rdf-schema#",
	"xsd":  "http://www.w3.org/2001/XMLSchema#",
}

// NewSPARQLClient creates a client for the given endpoint. extraPrefixes adds
// ontology-specific namespaces on top of the standard owl/rdf/rdfs/xsd set.
func NewSPARQLClient(endpoint string, timeout time.Duration, extraPrefixes map[string]string, log *slog.Logger) *SPARQLClient {
	merged := make(map[string]string, len(standardPrefixes)+len(extraPrefixes))
	for k, v := range standardPrefixes {
		merged[k] = v
	}
	for k, v := range extraPrefixes {
		merged[k] = v
	}

	names := make([]string, 0, len(merged))
	for k := range merged {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "PREFIX %s: <%s>\n", name, merged[name])
	}

	return &SPARQLClient{
		endpoint: endpoint,
		prefixes: b.String(),
		hc:       &http.Client{Timeout: timeout},
		log:      log.With(logger.Scope("sparql")),
	}
}

// Select runs a SELECT query and returns its result rows.
func (c *SPARQLClient) Select(ctx context.Context, query string) ([]Binding, error) {
	form := url.Values{"query": {c.prefixes + query}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build sparql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, apperror.NewUpstream("SPARQL endpoint request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperror.NewUpstream(
			fmt.Sprintf("SPARQL endpoint returned %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(body))),
		)
	}

	var parsed sparqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperror.NewUpstream("malformed SPARQL response", err)
	}

	c.log.Debug("sparql select",
		slog.Int("rows", len(parsed.Results.Bindings)),
	)
	return parsed.Results.Bindings, nil
}
