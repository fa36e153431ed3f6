package generation_settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"dream_layer_client/clock"
	"dream_layer_client/entities"
	"dream_layer_client/repositories"
)

const upsertSettingsQuery string = `
INSERT OR REPLACE INTO generation_settings (mode, settings, extras, updated_at) VALUES (?, ?, ?, ?);
`

const getSettingsByModeQuery string = `
SELECT mode, settings, extras, updated_at FROM generation_settings WHERE mode = ?;
`

// storedExtras is the JSON kept in the extras column.
type storedExtras struct {
	ControlNet     *entities.ControlNetConfig `json:"controlnet,omitempty"`
	Lora           *entities.LoraConfig       `json:"lora,omitempty"`
	CustomWorkflow entities.CustomWorkflow    `json:"custom_workflow,omitempty"`
}

type sqliteRepo struct {
	dbConn *sql.DB
	clock  clock.Clock
}

type Config struct {
	DB    *sql.DB
	Clock clock.Clock
}

func NewRepository(cfg *Config) (Repository, error) {
	if cfg.DB == nil {
		return nil, errors.New("missing DB parameter")
	}

	c := cfg.Clock
	if c == nil {
		c = clock.NewClock()
	}

	return &sqliteRepo{
		dbConn: cfg.DB,
		clock:  c,
	}, nil
}

func (repo *sqliteRepo) Upsert(ctx context.Context, record *entities.SettingsRecord) (*entities.SettingsRecord, error) {
	if !record.Mode.Valid() {
		return nil, fmt.Errorf("unknown generation mode %q", record.Mode)
	}

	settings, err := json.Marshal(record.Settings)
	if err != nil {
		return nil, err
	}

	extras, err := json.Marshal(storedExtras{
		ControlNet:     record.ControlNet,
		Lora:           record.Lora,
		CustomWorkflow: record.CustomWorkflow,
	})
	if err != nil {
		return nil, err
	}

	record.UpdatedAt = repo.clock.Now()

	_, err = repo.dbConn.ExecContext(ctx, upsertSettingsQuery,
		string(record.Mode), string(settings), string(extras), record.UpdatedAt.UTC())
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (repo *sqliteRepo) GetByMode(ctx context.Context, mode entities.GenerationMode) (*entities.SettingsRecord, error) {
	var (
		record   entities.SettingsRecord
		recMode  string
		settings string
		extras   string
	)

	err := repo.dbConn.QueryRowContext(ctx, getSettingsByModeQuery, string(mode)).Scan(
		&recMode, &settings, &extras, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.NewNotFoundError(fmt.Sprintf("generation settings for mode %s", mode))
		}

		return nil, err
	}

	record.Mode = entities.GenerationMode(recMode)

	err = json.Unmarshal([]byte(settings), &record.Settings)
	if err != nil {
		return nil, err
	}

	var stored storedExtras

	err = json.Unmarshal([]byte(extras), &stored)
	if err != nil {
		return nil, err
	}

	record.ControlNet = stored.ControlNet
	record.Lora = stored.Lora
	record.CustomWorkflow = stored.CustomWorkflow

	return &record, nil
}
