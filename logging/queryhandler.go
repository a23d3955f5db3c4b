package logging

import (
	"context"
	"reflect"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/terraskye/eventflow"
)

type queryHandlerLogger[T eventflow.Query, R any] struct {
	logger *logrus.Entry
	next   eventflow.QueryHandler[T, R]
}

func (q *queryHandlerLogger[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	fields := logrus.Fields{
		"query": reflect.TypeOf(qry).String(),
		"id":    string(qry.ID()),
	}

	start := time.Now()
	result, err := q.next.HandleQuery(ctx, qry)
	fields["took"] = time.Since(start).String()

	if err != nil {
		q.logger.WithFields(fields).WithError(err).Error("query failed")
		return result, err
	}

	// Collection results get a count, the common case for DLQ and stream
	// inspection queries.
	if rv := reflect.ValueOf(result); rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map {
		fields["results"] = rv.Len()
	}
	q.logger.WithFields(fields).Info("query handled")
	return result, nil
}

// WithQueryLogging wraps a QueryHandler so every query is logged with its
// type, id, duration, and (for collection results) result count. Failures
// are logged with the cause and still returned to the caller.
func WithQueryLogging[T eventflow.Query, R any](logger *logrus.Entry, next eventflow.QueryHandler[T, R]) eventflow.QueryHandler[T, R] {
	return &queryHandlerLogger[T, R]{
		logger: logger,
		next:   next,
	}
}
