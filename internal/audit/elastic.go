package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v9"
)

// Elastic indexes events and serves the admin audit search.
type Elastic struct {
	es    *elasticsearch.Client
	index string
}

func NewElastic(es *elasticsearch.Client, index string) *Elastic {
	return &Elastic{es: es, index: index}
}

func (s *Elastic) Record(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("audit: marshal: %w", err)
	}
	res, err := s.es.Index(s.index, bytes.NewReader(body), s.es.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("audit: index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return fmt.Errorf("audit: index: %s: %s", res.Status(), msg)
	}
	return nil
}

type Query struct {
	Text   string
	UserID uint
	From   int
	Size   int
}

// Search returns events matching q, newest first.
func (s *Elastic) Search(ctx context.Context, q Query) (int64, []Event, error) {
	must := []any{}
	if q.Text != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": []string{"action^2", "path", "error_kind", "ip"},
			},
		})
	}
	if q.UserID != 0 {
		must = append(must, map[string]any{"term": map[string]any{"user_id": q.UserID}})
	}
	query := map[string]any{"match_all": map[string]any{}}
	if len(must) > 0 {
		query = map[string]any{"bool": map[string]any{"must": must}}
	}
	body := map[string]any{
		"query": query,
		"sort":  []any{map[string]any{"@timestamp": map[string]any{"order": "desc"}}},
		"from":  q.From,
		"size":  q.Size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("audit: encode query: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("audit: search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, fmt.Errorf("audit: search: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Total struct{ Value int64 } `json:"total"`
			Hits  []struct {
				Source Event `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("audit: decode: %w", err)
	}

	events := make([]Event, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		events[i] = hit.Source
	}
	return r.Hits.Total.Value, events, nil
}
