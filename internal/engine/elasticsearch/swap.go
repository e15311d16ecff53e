package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/engine"
)

// staging is a freshly created index that is not yet behind the alias.
type staging struct {
	engine *Engine
	index  string
}

// BeginSwap creates an empty index to be filled and swapped in on Commit.
func (e *Engine) BeginSwap(ctx context.Context) (engine.Staging, error) {
	name, err := e.createIndex(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch begin swap: %w", err)
	}
	e.logger.Info("elasticsearch staging index created", slog.String("index", name))
	return &staging{engine: e, index: name}, nil
}

func (s *staging) BulkImport(ctx context.Context, docs []domain.SearchableDocument) (*domain.BulkResult, error) {
	return s.engine.bulkImport(ctx, s.index, docs)
}

// Commit points the alias at the staging index in one atomic alias update,
// then drops the indices it previously pointed at.
func (s *staging) Commit(ctx context.Context) error {
	e := s.engine
	old, err := e.aliasedIndices(ctx)
	if err != nil {
		return err
	}

	actions := make([]any, 0, len(old)+1)
	for _, idx := range old {
		actions = append(actions, map[string]any{"remove": map[string]any{"index": idx, "alias": e.alias}})
	}
	actions = append(actions, map[string]any{"add": map[string]any{"index": s.index, "alias": e.alias}})

	data, err := json.Marshal(map[string]any{"actions": actions})
	if err != nil {
		return fmt.Errorf("elasticsearch swap: marshal actions: %w", err)
	}

	res, err := e.client.Indices.UpdateAliases(bytes.NewReader(data), e.client.Indices.UpdateAliases.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch swap: %w", err)
	}
	defer closeBody(res)
	if res.IsError() {
		return responseError("swap", res)
	}

	e.logger.Info("elasticsearch alias swapped",
		slog.String("alias", e.alias),
		slog.String("index", s.index),
		slog.Any("previous", old),
	)

	if len(old) > 0 {
		if err := e.deleteIndices(ctx, old); err != nil {
			// Non-fatal: the alias already points at the new index.
			e.logger.Warn("failed to delete previous indices", slog.Any("indices", old), slog.String("error", err.Error()))
		}
	}
	return nil
}

// Abort drops the staging index.
func (s *staging) Abort(ctx context.Context) error {
	return s.engine.deleteIndices(ctx, []string{s.index})
}

// aliasedIndices returns the concrete indices behind the alias.
func (e *Engine) aliasedIndices(ctx context.Context) ([]string, error) {
	res, err := e.client.Indices.GetAlias(
		e.client.Indices.GetAlias.WithName(e.alias),
		e.client.Indices.GetAlias.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get alias: %w", err)
	}
	defer closeBody(res)

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, responseError("get alias", res)
	}

	var byIndex map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&byIndex); err != nil {
		return nil, fmt.Errorf("elasticsearch get alias: decode response: %w", err)
	}
	out := make([]string, 0, len(byIndex))
	for idx := range byIndex {
		out = append(out, idx)
	}
	return out, nil
}

func (e *Engine) deleteIndices(ctx context.Context, indices []string) error {
	res, err := e.client.Indices.Delete(indices, e.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer closeBody(res)

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete index", res)
	}
	return nil
}
