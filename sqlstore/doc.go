// Package sqlstore provides a SQL-backed resource handle for dbscope.
//
// A Store buffers insert/update/delete mutations (rendered to SQL with goqu at record
// time) and executes them in recording order when the owning scope saves the unit of
// work. When the scope requested transactional isolation, the scope machinery opens a
// database transaction through Begin and the buffered mutations execute inside it.
//
// The store works with any of the supported PostgreSQL database libraries through a
// common adapter interface: pgxpool.Pool, sql.DB, and sqlx.DB.
//
// Common usage pattern:
//
//	factory := dbscope.FactoryFunc(func(resourceType dbscope.Type) (dbscope.Handle, error) {
//		return sqlstore.NewStoreFromPGXPool(pool)
//	})
//
//	scope, sctx, err := dbscope.New(ctx, dbscope.WithFactory(factory))
//	if err != nil {
//		// handle error
//	}
//	defer scope.Close(sctx)
//
//	handle, err := locator.Get(sctx, "orders")
//	store := handle.(*sqlstore.Store)
//	_ = store.InsertInto("orders", goqu.Record{"id": orderID, "total": 42})
//
//	changes, err := scope.CompleteContext(sctx)
package sqlstore
