// Command demo shows how an application wires ambient scopes over SQL-backed stores:
// a scope factory with shared presets, repositories that locate their store through
// the ambient scope, and a service layer that owns the scope lifecycle.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yegor-mialyk/DbContextScope/dbscope"
	"github.com/yegor-mialyk/DbContextScope/example/shared/config"
	"github.com/yegor-mialyk/DbContextScope/sqlstore"
)

const (
	ordersResource   dbscope.Type = "orders"
	invoicesResource dbscope.Type = "invoices"
)

// slogAdapter adapts log/slog to the logger interfaces of dbscope and sqlstore.
type slogAdapter struct {
	logger *slog.Logger
}

func (l slogAdapter) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l slogAdapter) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l slogAdapter) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l slogAdapter) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// newStoreFactory builds a resource factory creating one SQL store per resource type,
// all backed by the same connection pool.
func newStoreFactory(pool *pgxpool.Pool, logger slogAdapter) dbscope.FactoryFunc {
	return func(resourceType dbscope.Type) (dbscope.Handle, error) {
		return sqlstore.NewStoreFromPGXPool(pool, sqlstore.WithLogger(logger))
	}
}

// placeOrder is the service-layer operation: it owns the scope and decides the outcome.
func placeOrder(ctx context.Context, scopes *dbscope.ScopeFactory, locator *dbscope.AmbientLocator, orderID int) error {
	scope, sctx, err := scopes.Create(ctx, dbscope.JoinExisting)
	if err != nil {
		return err
	}
	defer func() { _ = scope.Close(sctx) }()

	if err = insertOrder(sctx, locator, orderID); err != nil {
		return err
	}

	if err = createInvoice(sctx, locator, orderID); err != nil {
		return err
	}

	if _, err = scope.CompleteContext(sctx); err != nil {
		return err
	}

	return nil
}

// insertOrder is repository-style code: it never sees the scope, only the ambient store.
func insertOrder(ctx context.Context, locator *dbscope.AmbientLocator, orderID int) error {
	store, err := dbscope.AmbientAs[*sqlstore.Store](ctx, locator, ordersResource)
	if err != nil {
		return err
	}

	return store.InsertInto("orders", goqu.Record{"id": orderID, "status": "new"})
}

// createInvoice runs inside the same unit of work and shares its fate.
func createInvoice(ctx context.Context, locator *dbscope.AmbientLocator, orderID int) error {
	store, err := dbscope.AmbientAs[*sqlstore.Store](ctx, locator, invoicesResource)
	if err != nil {
		return err
	}

	return store.InsertInto("invoices", goqu.Record{"order_id": orderID, "amount": 100})
}

// countOpenOrders shows a read-only scope: disposal without completion is safe.
func countOpenOrders(ctx context.Context, scopes *dbscope.ScopeFactory, locator *dbscope.AmbientLocator) error {
	scope, sctx, err := scopes.CreateReadOnly(ctx, dbscope.JoinExisting)
	if err != nil {
		return err
	}
	defer func() { _ = scope.Close(sctx) }()

	_, err = locator.Get(sctx, ordersResource)

	return err
}

func main() {
	logger := slogAdapter{logger: slog.New(slog.NewTextHandler(os.Stdout, nil))}

	pool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolConfig())
	if err != nil {
		log.Fatal("Failed to create connection pool, error: ", err)
	}
	defer pool.Close()

	scopes := dbscope.NewScopeFactory(
		dbscope.WithFactory(newStoreFactory(pool, logger)),
		dbscope.WithLogger(logger),
	)
	locator := dbscope.NewAmbientLocator()

	ctx := context.Background()

	if err = placeOrder(ctx, scopes, locator, 1); err != nil {
		log.Fatal("Failed to place order, error: ", err)
	}

	if err = countOpenOrders(ctx, scopes, locator); err != nil {
		log.Fatal("Failed to count open orders, error: ", err)
	}

	logger.Info("demo finished")
}
