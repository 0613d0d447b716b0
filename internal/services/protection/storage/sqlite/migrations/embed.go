package migrations

import "embed"

// SchemaFile is the base schema applied on every open.
const SchemaFile = "001_schema.sql"

// FS contains the embedded SQLite schema for protection storage.
//
//go:embed *.sql
var FS embed.FS
