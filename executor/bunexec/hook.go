package bunexec

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-dataservice/txscope"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
)

// QueryHook logs every statement bun runs, tagged with the transaction scope
// token when there is one. Failed statements are logged at warn level.
type QueryHook struct {
	logger zerolog.Logger
}

var _ bun.QueryHook = (*QueryHook)(nil)

func NewQueryHook(logger zerolog.Logger) *QueryHook {
	return &QueryHook{logger: logger}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	ev := h.logger.Debug()
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		ev = h.logger.Warn().Err(event.Err)
	}
	if token, ok := txscope.TokenFromContext(ctx); ok {
		ev = ev.Str("txn", token)
	}
	ev.Str("operation", event.Operation()).
		Dur("duration", time.Since(event.StartTime)).
		Str("query", event.Query).
		Msg("query executed")
}
