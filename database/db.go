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
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/formsync/config"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Datasource struct {
	Conn   *sql.DB
	Driver string
}

// NewDataSource opens the configured store and brings its schema up to date.
func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := ConnectDB(configuration.DataSource.Driver, configuration.DataSource.Dns)
	if err != nil {
		return nil, err
	}

	ds := &Datasource{Conn: con, Driver: configuration.DataSource.Driver}
	n, err := Migrate(con, ds.Driver)
	if err != nil {
		_ = con.Close()
		return nil, err
	}
	if n > 0 {
		logrus.Infof("applied %d migrations", n)
	}
	return ds, nil
}

// NewSQLiteDataSource returns a migrated sqlite store, typically ":memory:" for tests.
func NewSQLiteDataSource(dsn string) (*Datasource, error) {
	con, err := ConnectDB(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(con, DriverSQLite); err != nil {
		_ = con.Close()
		return nil, err
	}
	return &Datasource{Conn: con, Driver: DriverSQLite}, nil
}

func ConnectDB(driver, dns string) (*sql.DB, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	db, err := sql.Open(driver, dns)
	if err != nil {
		return nil, err
	}

	switch driver {
	case DriverSQLite:
		// a single connection keeps ":memory:" databases alive and serialises writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	default:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	err = backoff.RetryNotify(ping, policy, func(err error, next time.Duration) {
		logrus.Warnf("database not ready, retrying in %s: %v", next, err)
	})
	if err != nil {
		logrus.Errorf("database Connection error ❌: %v", err)
		_ = db.Close()
		return nil, err
	}

	if driver == DriverSQLite {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}
	return db, nil
}
