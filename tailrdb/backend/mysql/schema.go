package mysql

import (
	"context"

	"github.com/pkg/errors"
)

// schema holds the five-table layout. hmap digests are raw SHA-1 bytes,
// cset/blob share the composite (repo, key digest, time) primary key and
// join on it. Timestamps are second resolution UTC.
var schema = []string{
	"CREATE TABLE IF NOT EXISTS `user` (" +
		"id INT UNSIGNED NOT NULL AUTO_INCREMENT," +
		"name VARCHAR(255) NOT NULL," +
		"PRIMARY KEY (id)," +
		"UNIQUE KEY user_name (name)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",

	"CREATE TABLE IF NOT EXISTS token (" +
		"id INT UNSIGNED NOT NULL AUTO_INCREMENT," +
		"value VARCHAR(255) NOT NULL," +
		"user_id INT UNSIGNED NOT NULL," +
		"`desc` VARCHAR(255) NOT NULL DEFAULT ''," +
		"PRIMARY KEY (id)," +
		"UNIQUE KEY token_value (value)," +
		"KEY token_user (user_id)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",

	"CREATE TABLE IF NOT EXISTS repo (" +
		"id INT UNSIGNED NOT NULL AUTO_INCREMENT," +
		"user_id INT UNSIGNED NOT NULL," +
		"name VARCHAR(255) NOT NULL," +
		"`desc` VARCHAR(255) NOT NULL DEFAULT ''," +
		"PRIMARY KEY (id)," +
		"UNIQUE KEY repo_user_name (user_id, name)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",

	"CREATE TABLE IF NOT EXISTS hmap (" +
		"sha BINARY(20) NOT NULL," +
		"val VARCHAR(2048) NOT NULL," +
		"PRIMARY KEY (sha)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",

	"CREATE TABLE IF NOT EXISTS cset (" +
		"repo_id INT UNSIGNED NOT NULL," +
		"hkey_id BINARY(20) NOT NULL," +
		"time TIMESTAMP NOT NULL," +
		"type TINYINT UNSIGNED NOT NULL," +
		"len MEDIUMINT UNSIGNED NOT NULL," +
		"PRIMARY KEY (repo_id, hkey_id, time)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",

	"CREATE TABLE IF NOT EXISTS blob (" +
		"repo_id INT UNSIGNED NOT NULL," +
		"hkey_id BINARY(20) NOT NULL," +
		"time TIMESTAMP NOT NULL," +
		"data BLOB NOT NULL," +
		"PRIMARY KEY (repo_id, hkey_id, time)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "error applying schema")
		}
	}
	return nil
}
