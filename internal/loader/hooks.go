package loader

import (
	"context"
	"time"

	"github.com/gowthamrao/eurostat-elt/pkg/log"
)

type queryTimingKey struct{}

// queryTimingHooks satisfies sqlhooks.Hooks, logging every query and its
// elapsed time at debug level so slow DDL/DML during a run is visible
// without instrumenting every call site.
type queryTimingHooks struct{}

func (h *queryTimingHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("sql query %s %q", query, args)
	return context.WithValue(ctx, queryTimingKey{}, time.Now()), nil
}

func (h *queryTimingHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(queryTimingKey{}).(time.Time); ok {
		log.Debugf("sql query took %s", time.Since(begin))
	}
	return ctx, nil
}

func (h *queryTimingHooks) OnError(ctx context.Context, err error, query string, args ...interface{}) error {
	log.Warnf("sql query failed: %s %q: %v", query, args, err)
	return err
}
