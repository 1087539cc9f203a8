// Package all wires all built-in sinks into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete backend, which register
// their factories with the storage package. The kinds made available are
// "csv", "sqlite", "postgres", "mssql" and "mysql".
//
// A binary that needs only a subset can import the backend packages it wants
// instead.
package all

import (
	_ "catalog/internal/storage/csvfile"
	_ "catalog/internal/storage/mssql"
	_ "catalog/internal/storage/mysql"
	_ "catalog/internal/storage/postgres"
	_ "catalog/internal/storage/sqlite"
)
