package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/yegor-mialyk/DbContextScope/dbscope"
	"github.com/yegor-mialyk/DbContextScope/sqlstore/internal/adapters"
)

var (
	// ErrNilDatabaseConnection is returned when a nil connection is supplied to a constructor.
	ErrNilDatabaseConnection = errors.New("nil database connection supplied")

	// ErrReadOnlyStore is returned when a mutation is recorded on a read-only store.
	ErrReadOnlyStore = errors.New("store is configured read-only")

	// ErrBuildingStatementFailed is returned when a recorded mutation cannot be rendered to SQL.
	ErrBuildingStatementFailed = errors.New("building SQL statement failed")

	// ErrSavingChangesFailed is returned when executing a pending mutation fails during save.
	ErrSavingChangesFailed = errors.New("saving pending changes failed")

	// ErrGettingRowsAffectedFailed is returned when the driver cannot report the affected row count.
	ErrGettingRowsAffectedFailed = errors.New("failed to get rows affected count")

	// ErrBeginningTransactionFailed is returned when a database transaction cannot be opened.
	ErrBeginningTransactionFailed = errors.New("beginning database transaction failed")

	// ErrTransactionAlreadyOpen is returned when Begin is called while a transaction is open.
	ErrTransactionAlreadyOpen = errors.New("a transaction is already open on this store")
)

const (
	defaultDialect          = "postgres"
	logMsgSQLExecuted       = "executed sql for: "
	logMsgChangesSaved      = "pending changes saved"
	logMsgDBExecFailed      = "database execution failed during save"
	logMsgBuildInsertFailed = "failed to build insert statement"
	logMsgBuildUpdateFailed = "failed to build update statement"
	logMsgBuildDeleteFailed = "failed to build delete statement"
	logAttrError            = "error"
	logAttrQuery            = "query"
	logAttrTable            = "table"
	logAttrDurationMS       = "duration_ms"
	logAttrStatementCount   = "statement_count"
	logAttrRowsAffected     = "rows_affected"
	mutationInsert          = "insert"
	mutationUpdate          = "update"
	mutationDelete          = "delete"
)

// Logger interface for SQL statement logging, operational messages, warnings,
// and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// pendingMutation is one recorded-but-unsaved mutation, rendered to SQL at record time
// so that malformed mutations fail early instead of at commit.
type pendingMutation struct {
	kind     string
	table    string
	sqlQuery string
}

// Store is a SQL-backed resource handle: it buffers insert/update/delete mutations and
// executes them in recording order when the owning scope saves the unit of work. It
// implements dbscope.Handle, so it plugs into a scope chain through a resource factory.
type Store struct {
	db       adapters.DBAdapter
	dialect  string
	logger   Logger
	readOnly bool
	tx       adapters.DBTx
	pending  []pendingMutation
}

// Option defines a functional option for configuring a Store.
type Option func(*Store) error

// WithDialect sets the goqu dialect used to render SQL. The default is postgres.
func WithDialect(dialect string) Option {
	return func(s *Store) error {
		if dialect == "" {
			return errors.New("empty dialect supplied")
		}

		s.dialect = dialect

		return nil
	}
}

// WithLogger sets the logger for the Store.
//
// Debug level: rendered SQL with execution timing (development use)
// Info level: statement and row counts per save (production-safe)
// Warn level: non-critical issues like rollback failures during close
// Error level: failures that abort a save.
func WithLogger(logger Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// NewStoreFromPGXPool creates a new Store using a pgx pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options...)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: defaultDialect,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// InsertInto records an insert of the given rows into a table.
func (s *Store) InsertInto(table string, rows ...any) error {
	if s.readOnly {
		return ErrReadOnlyStore
	}

	sqlQuery, _, toSQLErr := goqu.Dialect(s.dialect).
		Insert(table).
		Rows(rows...).
		ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildInsertFailed, toSQLErr, logAttrTable, table)
		return errors.Join(ErrBuildingStatementFailed, toSQLErr)
	}

	s.pending = append(s.pending, pendingMutation{kind: mutationInsert, table: table, sqlQuery: sqlQuery})

	return nil
}

// Update records an update of the given columns on all rows matching the conditions.
func (s *Store) Update(table string, set goqu.Record, conditions ...goqu.Expression) error {
	if s.readOnly {
		return ErrReadOnlyStore
	}

	sqlQuery, _, toSQLErr := goqu.Dialect(s.dialect).
		Update(table).
		Set(set).
		Where(conditions...).
		ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildUpdateFailed, toSQLErr, logAttrTable, table)
		return errors.Join(ErrBuildingStatementFailed, toSQLErr)
	}

	s.pending = append(s.pending, pendingMutation{kind: mutationUpdate, table: table, sqlQuery: sqlQuery})

	return nil
}

// DeleteFrom records a delete of all rows matching the conditions.
func (s *Store) DeleteFrom(table string, conditions ...goqu.Expression) error {
	if s.readOnly {
		return ErrReadOnlyStore
	}

	sqlQuery, _, toSQLErr := goqu.Dialect(s.dialect).
		Delete(table).
		Where(conditions...).
		ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildDeleteFailed, toSQLErr, logAttrTable, table)
		return errors.Join(ErrBuildingStatementFailed, toSQLErr)
	}

	s.pending = append(s.pending, pendingMutation{kind: mutationDelete, table: table, sqlQuery: sqlQuery})

	return nil
}

// SetReadOnly implements dbscope.Handle. A read-only store rejects mutation recording;
// already-recorded mutations are kept and discarded on close.
func (s *Store) SetReadOnly(readOnly bool) {
	s.readOnly = readOnly
}

// Save implements dbscope.Handle. It executes all pending mutations in recording order,
// inside the open transaction when one exists, and reports the total number of affected
// rows. On failure the already-executed prefix stays executed and the failing mutation
// remains pending.
func (s *Store) Save(ctx context.Context) (dbscope.ChangeCountInt64, error) {
	var totalRowsAffected dbscope.ChangeCountInt64
	statementCount := len(s.pending)

	for len(s.pending) > 0 {
		mutation := s.pending[0]

		start := time.Now()
		result, execErr := s.exec(ctx, mutation.sqlQuery)
		duration := time.Since(start)
		s.logQueryWithDuration(mutation.sqlQuery, mutation.kind, duration)

		if execErr != nil {
			s.logError(logMsgDBExecFailed, execErr, logAttrQuery, mutation.sqlQuery)
			return totalRowsAffected, errors.Join(ErrSavingChangesFailed, execErr)
		}

		rowsAffected, rowsAffectedErr := result.RowsAffected()
		if rowsAffectedErr != nil {
			s.logError(logMsgDBExecFailed, rowsAffectedErr, logAttrQuery, mutation.sqlQuery)
			return totalRowsAffected, errors.Join(ErrGettingRowsAffectedFailed, rowsAffectedErr)
		}

		totalRowsAffected += rowsAffected
		s.pending = s.pending[1:]
	}

	if statementCount > 0 {
		s.logOperation(logMsgChangesSaved,
			logAttrStatementCount, statementCount,
			logAttrRowsAffected, totalRowsAffected)
	}

	return totalRowsAffected, nil
}

// exec routes a statement through the open transaction when one exists.
func (s *Store) exec(ctx context.Context, sqlQuery string) (adapters.DBResult, error) {
	if s.tx != nil {
		return s.tx.Exec(ctx, sqlQuery)
	}

	return s.db.Exec(ctx, sqlQuery)
}

// Begin implements dbscope.Handle. Subsequent saves execute inside the returned
// transaction until it is committed or rolled back.
func (s *Store) Begin(ctx context.Context, level sql.IsolationLevel) (dbscope.Tx, error) {
	if s.tx != nil {
		return nil, ErrTransactionAlreadyOpen
	}

	tx, beginErr := s.db.BeginTx(ctx, level)
	if beginErr != nil {
		return nil, errors.Join(ErrBeginningTransactionFailed, beginErr)
	}

	s.tx = tx

	return &storeTx{store: s, tx: tx}, nil
}

// Close implements dbscope.Handle. Pending mutations are discarded; a transaction that
// is still open is rolled back.
func (s *Store) Close() error {
	s.pending = nil

	if s.tx == nil {
		return nil
	}

	tx := s.tx
	s.tx = nil

	return tx.Rollback(context.Background())
}

// PendingCount reports the number of recorded-but-unsaved mutations.
func (s *Store) PendingCount() int {
	return len(s.pending)
}

// InTransaction reports whether the store currently executes inside a transaction.
func (s *Store) InTransaction() bool {
	return s.tx != nil
}

// storeTx couples the lifecycle of an open transaction to its store, so the store
// stops routing statements through the transaction once it is finalized.
type storeTx struct {
	store *Store
	tx    adapters.DBTx
}

// Commit implements dbscope.Tx.
func (t *storeTx) Commit(ctx context.Context) error {
	t.store.tx = nil
	return t.tx.Commit(ctx)
}

// Rollback implements dbscope.Tx.
func (t *storeTx) Rollback(ctx context.Context) error {
	t.store.tx = nil
	return t.tx.Rollback(ctx)
}

// logQueryWithDuration logs SQL statements with execution time at debug level if the
// logger is configured.
func (s *Store) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (s *Store) logOperation(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

// logError logs error information at the error level if the logger is configured.
func (s *Store) logError(msg string, err error, args ...any) {
	if s.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		s.logger.Error(msg, allArgs...)
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

// Ensure Store implements dbscope.Handle.
var _ dbscope.Handle = (*Store)(nil)
