// Package testdoubles provides in-memory fakes and spies for testing code built on
// the dbscope package: an in-memory resource handle and transaction, a resource
// factory over them, and spies for the observability interfaces.
package testdoubles
