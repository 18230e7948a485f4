package catalog

// schemaStatements creates the two persisted tables of the data model
// (file observations and visit records), a unique index allowing one
// current row per path, and the three indices called out for the persisted
// store: current-file lookup, full hash index, and the revisit-queue index.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS file_observations (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		path           TEXT NOT NULL,
		digest         TEXT NOT NULL,
		mtime          INTEGER NOT NULL,
		size           INTEGER NOT NULL,
		first_observed INTEGER NOT NULL,
		deleted_before INTEGER
	);`,
	// At most one current (deleted_before IS NULL) row per path.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_file_observations_current
		ON file_observations(path) WHERE deleted_before IS NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_file_observations_current_lookup
		ON file_observations(digest, path, mtime, size) WHERE deleted_before IS NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_file_observations_digest
		ON file_observations(digest);`,
	`CREATE TABLE IF NOT EXISTS visit_records (
		path         TEXT PRIMARY KEY,
		revisit_time INTEGER
	);`,
	`CREATE INDEX IF NOT EXISTS idx_visit_records_revisit
		ON visit_records(path, revisit_time) WHERE revisit_time IS NOT NULL;`,
}
