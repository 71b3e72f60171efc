package archive

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
		CREATE TABLE scene(
			id INTEGER PRIMARY KEY,
			collection TEXT NOT NULL,
			scene_id TEXT NOT NULL,
			acquired INT NOT NULL,
			min_x REAL NOT NULL,
			min_y REAL NOT NULL,
			max_x REAL NOT NULL,
			max_y REAL NOT NULL,
			bands TEXT NOT NULL
		);

		CREATE UNIQUE INDEX idx_scene_collection_scene_id ON scene (collection, scene_id);
		CREATE INDEX idx_scene_collection_acquired ON scene (collection, acquired);
	`))

	return migs
}
