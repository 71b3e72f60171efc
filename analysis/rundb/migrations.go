package rundb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE run(
			id INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			started INT NOT NULL,
			finished INT,
			seed INT,
			config TEXT,
			metrics TEXT,
			error TEXT
		);

		CREATE TABLE artifact(
			id INTEGER PRIMARY KEY,
			run_id INT NOT NULL,
			name TEXT NOT NULL,
			blob_key TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size INT NOT NULL,
			created INT NOT NULL
		);

		CREATE UNIQUE INDEX idx_artifact_run_id_name ON artifact (run_id, name);
	`))

	return migs
}
