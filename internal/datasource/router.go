// Package datasource routes intent executions to the backing stores:
// Postgres for transactional records, Elasticsearch for knowledge documents.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "hellobot-orchestrator/internal/common/errors"
	"hellobot-orchestrator/internal/common/metrics"
	"hellobot-orchestrator/internal/models"
)

var (
	// ErrNotFound means the query ran fine and matched nothing. This is a
	// normal business outcome, not a failure.
	ErrNotFound = errors.New("NOT_FOUND")

	// ErrSourceUnavailable means the backing store could not be reached.
	ErrSourceUnavailable = errors.New("SOURCE_UNAVAILABLE")
)

// Record is one retrieved result, source-agnostic.
type Record struct {
	Source models.DataSource
	Fields map[string]interface{}
}

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Config holds router settings.
type Config struct {
	RetryBackoff time.Duration
	QueryTimeout time.Duration
}

// Router dispatches a fetch to the store named by the intent definition.
// Unavailable sources are retried exactly once after a short backoff.
type Router struct {
	config        *Config
	transactional *TransactionalStore
	knowledge     *KnowledgeStore
	logger        Logger
}

func NewRouter(config *Config, transactional *TransactionalStore, knowledge *KnowledgeStore, log Logger) *Router {
	return &Router{
		config:        config,
		transactional: transactional,
		knowledge:     knowledge,
		logger: log.With(map[string]interface{}{
			"component": "datasource",
		}),
	}
}

// Fetch executes the intent's query with the filled slot values.
func (r *Router) Fetch(ctx context.Context, intent *models.IntentDefinition, slots map[string]string) (*Record, error) {
	record, err := r.fetchOnce(ctx, intent, slots)

	retries := apperrors.GetRetryCount(apperrors.ErrCodeSourceUnavailable)
	for attempt := 1; attempt <= retries && errors.Is(err, ErrSourceUnavailable); attempt++ {
		r.logger.Warn("data source unavailable, retrying", map[string]interface{}{
			"intent":  intent.Name,
			"source":  string(intent.DataSource),
			"attempt": attempt,
			"error":   err.Error(),
		})

		select {
		case <-time.After(r.config.RetryBackoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, ctx.Err())
		}

		record, err = r.fetchOnce(ctx, intent, slots)
	}

	outcome := "ok"
	if errors.Is(err, ErrNotFound) {
		outcome = "not_found"
		stdErr := apperrors.NewNotFoundError(string(intent.DataSource), slots[intent.Query.KeySlot])
		r.logger.Info("query matched nothing", map[string]interface{}{
			"intent":  intent.Name,
			"code":    string(stdErr.Code),
			"details": stdErr.Details,
		})
	} else if err != nil {
		outcome = "error"
	}
	metrics.DataFetches.WithLabelValues(string(intent.DataSource), outcome).Inc()

	return record, err
}

func (r *Router) fetchOnce(ctx context.Context, intent *models.IntentDefinition, slots map[string]string) (*Record, error) {
	queryCtx, cancel := context.WithTimeout(ctx, r.config.QueryTimeout)
	defer cancel()

	switch intent.DataSource {
	case models.DataSourceTransactional:
		fields, err := r.transactional.FetchOrder(queryCtx, slots[intent.Query.KeySlot])
		if err != nil {
			return nil, err
		}
		return &Record{Source: models.DataSourceTransactional, Fields: fields}, nil

	case models.DataSourceKnowledge:
		fields, err := r.knowledge.FetchDocument(queryCtx, intent.Query, slots[intent.Query.KeySlot])
		if err != nil {
			return nil, err
		}
		return &Record{Source: models.DataSourceKnowledge, Fields: fields}, nil

	default:
		return nil, fmt.Errorf("unknown data source %q for intent %q", intent.DataSource, intent.Name)
	}
}
