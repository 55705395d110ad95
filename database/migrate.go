/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"database/sql"
	"embed"

	migrate "github.com/rubenv/sql-migrate"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

func migrations() migrate.MigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: SQLFiles,
		Root:       "sql",
	}
}

// Migrate applies every pending migration and returns how many ran.
func Migrate(db *sql.DB, driver string) (int, error) {
	return migrate.Exec(db, driver, migrations(), migrate.Up)
}

// Rollback reverts the most recent migration.
func Rollback(db *sql.DB, driver string) (int, error) {
	return migrate.ExecMax(db, driver, migrations(), migrate.Down, 1)
}
