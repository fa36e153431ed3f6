package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

const DefaultDBFile string = "dream_layer_client.sqlite"

const getCurrentMigration string = `PRAGMA user_version;`
const setCurrentMigration string = `PRAGMA user_version = ?;`

const createGeneratedImagesTableIfNotExistsQuery string = `
CREATE TABLE IF NOT EXISTS generated_images (
seq INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
id TEXT NOT NULL UNIQUE,
mode TEXT NOT NULL,
url TEXT NOT NULL,
prompt TEXT NOT NULL,
negative_prompt TEXT NOT NULL,
settings TEXT NOT NULL,
created_at DATETIME NOT NULL
);`

const createModeIndexIfNotExistsQuery string = `
CREATE INDEX IF NOT EXISTS generated_images_mode_index
ON generated_images(mode, seq);
`

const createGenerationSettingsTableIfNotExistsQuery string = `
CREATE TABLE IF NOT EXISTS generation_settings (
mode TEXT NOT NULL PRIMARY KEY,
settings TEXT NOT NULL,
updated_at DATETIME NOT NULL
);`

const addSettingsExtrasColumnQuery string = `
ALTER TABLE generation_settings ADD COLUMN extras TEXT NOT NULL DEFAULT '{}';
`

type migration struct {
	migrationName  string
	migrationQuery string
}

var migrations = []migration{
	{migrationName: "create generated images table", migrationQuery: createGeneratedImagesTableIfNotExistsQuery},
	{migrationName: "add generated images mode index", migrationQuery: createModeIndexIfNotExistsQuery},
	{migrationName: "create generation settings table", migrationQuery: createGenerationSettingsTableIfNotExistsQuery},
	{migrationName: "add settings extras column", migrationQuery: addSettingsExtrasColumnQuery},
}

// New opens (creating if needed) the database at filename and migrates it.
// An empty filename uses DefaultDBFile in the working directory.
func New(ctx context.Context, filename string) (*sql.DB, error) {
	if filename == "" {
		var err error

		filename, err = DBFilename()
		if err != nil {
			return nil, err
		}
	}

	err := touchDBFile(filename)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}

	// a single connection keeps PRAGMA user_version and writes serialized
	db.SetMaxOpenConns(1)

	err = migrate(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var currentMigration int

	row := db.QueryRowContext(ctx, getCurrentMigration)

	err := row.Scan(&currentMigration)
	if err != nil {
		return err
	}

	requiredMigration := len(migrations)

	log.Debugf("Current DB version: %v, required DB version: %v", currentMigration, requiredMigration)

	if currentMigration < requiredMigration {
		for migrationNum := currentMigration + 1; migrationNum <= requiredMigration; migrationNum++ {
			err = execMigration(ctx, db, migrationNum)
			if err != nil {
				log.Errorf("Error running migration %v '%v'", migrationNum, migrations[migrationNum-1].migrationName)

				return err
			}
		}
	}

	return nil
}

func execMigration(ctx context.Context, db *sql.DB, migrationNum int) error {
	log.Infof("Running migration %v '%v'", migrationNum, migrations[migrationNum-1].migrationName)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	//nolint
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, migrations[migrationNum-1].migrationQuery)
	if err != nil {
		return err
	}

	setQuery := strings.Replace(setCurrentMigration, "?", strconv.Itoa(migrationNum), 1)

	_, err = tx.ExecContext(ctx, setQuery)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func DBFilename() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, DefaultDBFile), nil
}

func touchDBFile(filename string) error {
	_, err := os.Stat(filename)
	if os.IsNotExist(err) {
		file, createErr := os.Create(filename)
		if createErr != nil {
			return createErr
		}

		closeErr := file.Close()
		if closeErr != nil {
			return closeErr
		}
	}

	return nil
}
