package di

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goliatone/go-dataservice/config"
	"github.com/goliatone/go-dataservice/dataservice"
	"github.com/goliatone/go-dataservice/executor/bunexec"
	"github.com/goliatone/go-dataservice/internal/logging"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
)

// Service is the data service over bun connections.
type Service = dataservice.Service[bun.Conn]

// Container wires a bun database, the logger built from config.Log and the
// data service on top of them. It owns every component it created and
// releases them in Close.
type Container struct {
	config  config.Config
	db      *bun.DB
	ownsDB  bool
	logger  zerolog.Logger
	logs    io.Closer
	service *Service
}

// NewContainer opens the database described by cfg.Connection and builds the
// data service. No connection is made until the first operation.
func NewContainer(cfg config.Config, opts ...dataservice.Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("di: invalid config: %w", err)
	}

	db, err := bunexec.Open(cfg.Connection)
	if err != nil {
		return nil, err
	}

	c, err := build(cfg, db, true, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerFromFile loads cfg with config.Load and calls NewContainer.
func NewContainerFromFile(path string, opts ...dataservice.Option) (*Container, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return NewContainer(cfg, opts...)
}

// NewContainerWithDB builds the data service over an existing database. The
// caller keeps ownership of db; Close does not close it.
func NewContainerWithDB(cfg config.Config, db *bun.DB, opts ...dataservice.Option) (*Container, error) {
	if db == nil {
		return nil, errors.New("di: db is required")
	}
	return build(cfg, db, false, opts)
}

func build(cfg config.Config, db *bun.DB, ownsDB bool, opts []dataservice.Option) (*Container, error) {
	logger, logs, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("di: %w", err)
	}

	db.AddQueryHook(bunexec.NewQueryHook(logging.Component(logger, "sql")))

	// the configured logger goes first so opts can replace it
	opts = append([]dataservice.Option{dataservice.WithLogger(logger)}, opts...)
	svc, err := dataservice.New[bun.Conn](cfg, bunexec.NewConnector(db), bunexec.NewExecutor(), opts...)
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("di: %w", err)
	}

	return &Container{
		config:  cfg,
		db:      db,
		ownsDB:  ownsDB,
		logger:  logger,
		logs:    logs,
		service: svc,
	}, nil
}

// Service returns the singleton data service.
func (c *Container) Service() *Service {
	return c.service
}

// Config returns the configuration the container was built with.
func (c *Container) Config() config.Config {
	return c.config
}

// DB returns the underlying bun database, e.g. for migrations.
func (c *Container) DB() *bun.DB {
	return c.db
}

// Logger returns the root logger built from config.Log.
func (c *Container) Logger() zerolog.Logger {
	return c.logger
}

// Close closes the service, then the database if the container opened it,
// then the log file.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if err := c.service.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.ownsDB {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("di: close db: %w", err))
		}
	}
	if err := c.logs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("di: close logs: %w", err))
	}
	return errors.Join(errs...)
}
