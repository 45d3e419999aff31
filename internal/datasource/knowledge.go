package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"hellobot-orchestrator/internal/models"
)

// KnowledgeStore reads policy documents from Elasticsearch.
type KnowledgeStore struct {
	esClient *elasticsearch.Client
}

func NewKnowledgeStore(esClient *elasticsearch.Client) *KnowledgeStore {
	return &KnowledgeStore{esClient: esClient}
}

// FetchDocument matches a policy document by the template's key field. When
// the keyed slot carries no value the query falls back to an unfiltered
// lookup, so key-less intents still return the general policy document.
func (s *KnowledgeStore) FetchDocument(ctx context.Context, query models.QueryTemplate, keyValue string) (map[string]interface{}, error) {
	var esQuery map[string]interface{}
	if query.KeyField != "" && keyValue != "" {
		esQuery = map[string]interface{}{
			"match": map[string]interface{}{query.KeyField: keyValue},
		}
	} else {
		esQuery = map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	}

	queryBody := map[string]interface{}{
		"query": esQuery,
		"size":  1,
	}

	body, _ := json.Marshal(queryBody)
	req := esapi.SearchRequest{
		Index: []string{query.Index},
		Body:  strings.NewReader(string(body)),
	}

	res, err := req.Do(ctx, s.esClient)
	if err != nil {
		return nil, fmt.Errorf("%w: knowledge search: %v", ErrSourceUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: knowledge search: %s", ErrSourceUnavailable, res.Status())
	}

	var r map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", ErrSourceUnavailable, err)
	}

	// A search response without the hits envelope is a broken source, not
	// an empty result. Only zero hits means nothing matched.
	outer, ok := r["hits"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: malformed search response from index %s", ErrSourceUnavailable, query.Index)
	}
	hits, ok := outer["hits"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: malformed search response from index %s", ErrSourceUnavailable, query.Index)
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: index %s", ErrNotFound, query.Index)
	}

	hit, ok := hits[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: malformed search response from index %s", ErrSourceUnavailable, query.Index)
	}
	source, ok := hit["_source"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: malformed search response from index %s", ErrSourceUnavailable, query.Index)
	}

	return source, nil
}

// Ping verifies cluster connectivity for readiness checks.
func (s *KnowledgeStore) Ping(ctx context.Context) error {
	res, err := s.esClient.Ping(s.esClient.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: %s", ErrSourceUnavailable, res.Status())
	}
	return nil
}
