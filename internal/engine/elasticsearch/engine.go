// Package elasticsearch implements the search index client on top of an
// Elasticsearch cluster. Searches are served from an alias so a full
// reindex can build a new index aside and swap it in atomically.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/engine"
	"github.com/sedirimou/Gameva-sub003/pkg/pagination"
)

var (
	_ engine.IndexClient = (*Engine)(nil)
	_ engine.Swapper     = (*Engine)(nil)
	_ engine.Suggester   = (*Engine)(nil)
)

// Config holds the connection settings for the cluster.
type Config struct {
	URL      string
	Username string
	Password string
	Alias    string
}

// Engine is an Elasticsearch-backed IndexClient.
type Engine struct {
	client *elasticsearch.Client
	alias  string
	logger *slog.Logger
}

type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Score     *float64                  `json:"_score"`
			Source    domain.SearchableDocument `json:"_source"`
			Highlight map[string][]string       `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Values struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int    `json:"doc_count"`
			} `json:"buckets"`
		} `json:"values"`
	} `json:"aggregations"`
}

type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New connects to the cluster and makes sure the alias points at an index,
// creating one if necessary.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}
	return NewWithClient(ctx, client, cfg.Alias, logger)
}

// NewWithClient is like New but uses an existing client.
func NewWithClient(ctx context.Context, client *elasticsearch.Client, alias string, logger *slog.Logger) (*Engine, error) {
	if alias == "" {
		alias = DefaultIndexName
	}
	e := &Engine{client: client, alias: alias, logger: logger}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch: ensure index: %w", err)
	}
	return e, nil
}

// responseError turns a failed response into an error. The body is consumed.
func responseError(op string, res *esapi.Response) error {
	var errResp esErrorResponse
	if err := json.NewDecoder(res.Body).Decode(&errResp); err == nil && errResp.Error.Type != "" {
		return fmt.Errorf("elasticsearch %s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("elasticsearch %s: unexpected status %s", op, res.Status())
}

func closeBody(res *esapi.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}

// Ping checks whether the cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// ensureIndex creates a first concrete index behind the alias when the alias
// does not resolve yet.
func (e *Engine) ensureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.alias}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	closeBody(res)

	if res.StatusCode == http.StatusOK {
		e.logger.Info("elasticsearch index already exists", slog.String("alias", e.alias))
		return nil
	}

	name, err := e.createIndex(ctx, true)
	if err != nil {
		return err
	}
	e.logger.Info("elasticsearch index created", slog.String("alias", e.alias), slog.String("index", name))
	return nil
}

// createIndex creates a new concrete index, optionally already aliased.
func (e *Engine) createIndex(ctx context.Context, withAlias bool) (string, error) {
	name := fmt.Sprintf("%s_%d", e.alias, time.Now().UnixNano())

	var body map[string]any
	if err := json.Unmarshal([]byte(buildIndexMapping()), &body); err != nil {
		return "", fmt.Errorf("decode mapping: %w", err)
	}
	if withAlias {
		body["aliases"] = map[string]any{e.alias: map[string]any{}}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode mapping: %w", err)
	}

	res, err := e.client.Indices.Create(name,
		e.client.Indices.Create.WithBody(bytes.NewReader(data)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("create index: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return "", responseError("create index", res)
	}
	return name, nil
}

// Upsert indexes a single document, replacing any previous version.
func (e *Engine) Upsert(ctx context.Context, doc *domain.SearchableDocument) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: missing id", domain.ErrInvalidDocument)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	res, err := e.client.Index(
		e.alias,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(doc.ID),
		e.client.Index.WithRefresh("true"),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return responseError("index", res)
	}

	e.logger.Debug("indexed document", slog.String("id", doc.ID), slog.String("name", doc.Name))
	return nil
}

// Delete removes a document. A 404 is not an error.
func (e *Engine) Delete(ctx context.Context, id string) error {
	res, err := e.client.Delete(
		e.alias,
		id,
		e.client.Delete.WithRefresh("true"),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer closeBody(res)

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete", res)
	}

	e.logger.Debug("deleted document", slog.String("id", id))
	return nil
}

// BulkImport indexes docs into the live index.
func (e *Engine) BulkImport(ctx context.Context, docs []domain.SearchableDocument) (*domain.BulkResult, error) {
	return e.bulkImport(ctx, e.alias, docs)
}

// bulkImport writes docs to index with the bulk NDJSON API and reports the
// outcome of every document.
func (e *Engine) bulkImport(ctx context.Context, index string, docs []domain.SearchableDocument) (*domain.BulkResult, error) {
	result := &domain.BulkResult{Items: make([]domain.ItemResult, 0, len(docs))}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	sent := make([]string, 0, len(docs))
	for i := range docs {
		if docs[i].ID == "" {
			result.Add("", fmt.Errorf("%w: missing id", domain.ErrInvalidDocument))
			continue
		}
		action := map[string]any{"index": map[string]any{"_index": index, "_id": docs[i].ID}}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk: encode action: %w", err)
		}
		if err := enc.Encode(&docs[i]); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk: encode document: %w", err)
		}
		sent = append(sent, docs[i].ID)
	}
	if len(sent) == 0 {
		return result, nil
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(index),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, responseError("bulk", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: decode response: %w", err)
	}

	for i, item := range bulkResp.Items {
		for _, op := range item {
			id := op.ID
			if id == "" && i < len(sent) {
				id = sent[i]
			}
			if op.Error != nil {
				result.Add(id, fmt.Errorf("%s: %s", op.Error.Type, op.Error.Reason))
			} else {
				result.Add(id, nil)
			}
		}
	}

	e.logger.Info("bulk indexed documents",
		slog.String("index", index),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// Search runs the query against the live index.
func (e *Engine) Search(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error) {
	params := pagination.Resolve(query.Page, query.PerPage, query.Offset)

	data, err := json.Marshal(buildSearchQuery(query, params))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.alias),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, responseError("search", res)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	hits := make([]domain.Hit, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		score := 0
		if h.Score != nil {
			score = int(math.Round(*h.Score))
		}
		hit := domain.NewHit(h.Source, score)
		for field, fragments := range h.Highlight {
			if len(fragments) == 0 {
				continue
			}
			if hit.Highlights == nil {
				hit.Highlights = map[string]string{}
			}
			hit.Highlights[field] = strings.Join(fragments, " … ")
		}
		hits = append(hits, hit)
	}

	facets := make(map[string]map[string]int, len(domain.FacetFields))
	for _, field := range domain.FacetFields {
		counts := map[string]int{}
		for _, b := range esResp.Aggregations[field].Values.Buckets {
			counts[b.Key] = b.DocCount
		}
		facets[field] = counts
	}

	total := esResp.Hits.Total.Value
	return &domain.SearchResult{
		Hits:       hits,
		Total:      total,
		Page:       params.Page,
		PerPage:    params.PerPage,
		Offset:     params.Offset,
		TotalPages: pagination.TotalPages(total, params.PerPage),
		Facets:     facets,
		TookMs:     int64(esResp.Took),
	}, nil
}

// Clear deletes every document from the live index.
func (e *Engine) Clear(ctx context.Context) error {
	res, err := e.client.DeleteByQuery(
		[]string{e.alias},
		strings.NewReader(`{"query":{"match_all":{}}}`),
		e.client.DeleteByQuery.WithConflicts("proceed"),
		e.client.DeleteByQuery.WithRefresh(true),
		e.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch clear: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return responseError("clear", res)
	}
	e.logger.Info("elasticsearch index cleared", slog.String("alias", e.alias))
	return nil
}

// Stats reports the document count and the creation time of the index
// currently behind the alias.
func (e *Engine) Stats(ctx context.Context) (*domain.IndexStats, error) {
	res, err := e.client.Count(
		e.client.Count.WithIndex(e.alias),
		e.client.Count.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch count: %w", err)
	}
	defer closeBody(res)
	if res.IsError() {
		return nil, responseError("count", res)
	}

	var count struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&count); err != nil {
		return nil, fmt.Errorf("elasticsearch count: decode response: %w", err)
	}

	stats := &domain.IndexStats{TotalDocuments: count.Count, Name: e.alias}

	settings, err := e.client.Indices.GetSettings(
		e.client.Indices.GetSettings.WithIndex(e.alias),
		e.client.Indices.GetSettings.WithName("index.creation_date"),
		e.client.Indices.GetSettings.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch settings: %w", err)
	}
	defer closeBody(settings)
	if settings.IsError() {
		return nil, responseError("settings", settings)
	}

	var byIndex map[string]struct {
		Settings struct {
			Index struct {
				CreationDate string `json:"creation_date"`
			} `json:"index"`
		} `json:"settings"`
	}
	if err := json.NewDecoder(settings.Body).Decode(&byIndex); err != nil {
		return nil, fmt.Errorf("elasticsearch settings: decode response: %w", err)
	}
	for _, idx := range byIndex {
		if ms, err := strconv.ParseInt(idx.Settings.Index.CreationDate, 10, 64); err == nil {
			stats.CreatedAt = time.UnixMilli(ms).UTC()
		}
	}
	return stats, nil
}

// Suggest returns distinct names of documents whose name has a word
// starting with prefix.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	data, err := json.Marshal(buildSuggestQuery(prefix, limit))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch suggest: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.alias),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch suggest: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, responseError("suggest", res)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch suggest: decode response: %w", err)
	}

	seen := make(map[string]struct{})
	names := make([]string, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		name := hit.Source.Name
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}
