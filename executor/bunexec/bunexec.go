// Package bunexec runs data service operations on PostgreSQL or SQLite
// through bun.
//
// Open builds the *bun.DB for a config.Connection. Connector hands pool
// dedicated bun.Conn values taken from it, and Executor runs queries and
// inserts on those connections:
//
//	db, err := bunexec.Open(cfg.Connection)
//	...
//	svc, err := dataservice.New[bun.Conn](cfg, bunexec.NewConnector(db), bunexec.NewExecutor())
package bunexec

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/goliatone/go-dataservice/config"
	"github.com/goliatone/go-dataservice/dataservice"
	"github.com/goliatone/go-dataservice/pool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// Open opens the database described by cfg without connecting. The
// database/sql pool is capped at cfg.PoolSize so it never holds more
// connections than the data service pool hands out.
func Open(cfg config.Connection) (*bun.DB, error) {
	var (
		driver  string
		dialect schema.Dialect
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		driver, dialect = "postgres", pgdialect.New()
	case config.DriverSQLite:
		driver, dialect = "sqlite3", sqlitedialect.New()
	default:
		return nil, fmt.Errorf("bunexec: unsupported driver %q", cfg.Driver)
	}

	sqldb, err := sql.Open(driver, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("bunexec: open %s: %w", cfg.Driver, err)
	}
	if cfg.PoolSize > 0 {
		sqldb.SetMaxOpenConns(cfg.PoolSize)
		sqldb.SetMaxIdleConns(cfg.PoolSize)
	}

	return bun.NewDB(sqldb, dialect), nil
}

// DSN renders the driver connection string. For SQLite the database field is
// used as is.
func DSN(cfg config.Connection) string {
	if cfg.Driver == config.DriverSQLite {
		return cfg.Database
	}

	q := url.Values{}
	if cfg.SSLEnabled {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	if cfg.Timeout > 0 {
		secs := int(cfg.Timeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	if name := cfg.Metadata["application_name"]; name != "" {
		q.Set("application_name", name)
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	if cfg.Username != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			u.User = url.User(cfg.Username)
		}
	}
	return u.String()
}

// Connector checks dedicated connections out of a bun.DB for the pool.
type Connector struct {
	db *bun.DB
}

var _ pool.Connector[bun.Conn] = (*Connector)(nil)

func NewConnector(db *bun.DB) *Connector {
	return &Connector{db: db}
}

func (c *Connector) Connect(ctx context.Context) (bun.Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return bun.Conn{}, fmt.Errorf("bunexec: connect: %w", err)
	}
	return conn, nil
}

func (c *Connector) Disconnect(conn bun.Conn) error {
	return conn.Close()
}

// Executor implements dataservice.Executor over bun.Conn.
type Executor struct{}

var _ dataservice.Executor[bun.Conn] = (*Executor)(nil)

func NewExecutor() *Executor {
	return &Executor{}
}

// Query binds :name parameters the way sqlx.Named does and scans every row
// into a column map. A literal colon is written as ::.
func (e *Executor) Query(ctx context.Context, conn bun.Conn, query string, params dataservice.Params) ([]dataservice.Row, error) {
	bound, args, err := bindNamed(query, params)
	if err != nil {
		return nil, err
	}

	var out []map[string]interface{}
	if err := conn.NewRaw(bound, args...).Scan(ctx, &out); err != nil {
		return nil, fmt.Errorf("bunexec: query: %w", err)
	}

	rows := make([]dataservice.Row, len(out))
	for i, m := range out {
		rows[i] = dataservice.Row(m)
	}
	return rows, nil
}

// Insert writes records into table inside one database transaction. Either
// every record is written or none is.
func (e *Executor) Insert(ctx context.Context, conn bun.Conn, table string, records []dataservice.Row) (int, error) {
	if err := dataservice.ValidateIdentifier(table); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("bunexec: begin: %w", err)
	}

	for i, record := range records {
		values := map[string]interface{}(record)
		if _, err := tx.NewInsert().Model(&values).TableExpr(table).Exec(ctx); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("bunexec: insert into %s, record %d: %w", table, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("bunexec: commit: %w", err)
	}
	return len(records), nil
}

// bindNamed rewrites :name references to ? placeholders in reference order.
func bindNamed(query string, params dataservice.Params) (string, []interface{}, error) {
	arg := map[string]interface{}(params)
	if arg == nil {
		arg = map[string]interface{}{}
	}

	bound, args, err := sqlx.Named(query, arg)
	if err != nil {
		return "", nil, fmt.Errorf("bunexec: bind parameters: %w", err)
	}
	return bound, args, nil
}
