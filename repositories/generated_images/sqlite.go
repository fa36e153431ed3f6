package generated_images

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"dream_layer_client/entities"
	"dream_layer_client/repositories"
)

const insertImageQuery string = `
INSERT INTO generated_images (id, mode, url, prompt, negative_prompt, settings, created_at) VALUES (?, ?, ?, ?, ?, ?, ?);
`

const listImagesByModeQuery string = `
SELECT seq, id, mode, url, prompt, negative_prompt, settings, created_at FROM generated_images WHERE mode = ? ORDER BY seq ASC;
`

const deleteImageQuery string = `
DELETE FROM generated_images WHERE id = ?;
`

const deleteImagesByModeQuery string = `
DELETE FROM generated_images WHERE mode = ?;
`

type sqliteRepo struct {
	dbConn *sql.DB
}

type Config struct {
	DB *sql.DB
}

func NewRepository(cfg *Config) (Repository, error) {
	if cfg.DB == nil {
		return nil, errors.New("missing DB parameter")
	}

	return &sqliteRepo{dbConn: cfg.DB}, nil
}

func (repo *sqliteRepo) Create(ctx context.Context, image *entities.GeneratedImage) (*entities.GeneratedImage, error) {
	settings, err := json.Marshal(image.Settings)
	if err != nil {
		return nil, err
	}

	res, err := repo.dbConn.ExecContext(ctx, insertImageQuery,
		image.ID, string(image.Mode), image.URL, image.Prompt, image.NegativePrompt,
		string(settings), image.Timestamp.UTC())
	if err != nil {
		return nil, err
	}

	lastID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	image.SortOrder = int(lastID)

	return image, nil
}

func (repo *sqliteRepo) ListByMode(ctx context.Context, mode entities.GenerationMode) ([]*entities.GeneratedImage, error) {
	rows, err := repo.dbConn.QueryContext(ctx, listImagesByModeQuery, string(mode))
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	images := make([]*entities.GeneratedImage, 0)

	for rows.Next() {
		var (
			image    entities.GeneratedImage
			imgMode  string
			settings string
		)

		err = rows.Scan(&image.SortOrder, &image.ID, &imgMode, &image.URL, &image.Prompt,
			&image.NegativePrompt, &settings, &image.Timestamp)
		if err != nil {
			return nil, err
		}

		image.Mode = entities.GenerationMode(imgMode)

		err = json.Unmarshal([]byte(settings), &image.Settings)
		if err != nil {
			return nil, fmt.Errorf("generated image %s: %w", image.ID, err)
		}

		images = append(images, &image)
	}

	return images, rows.Err()
}

func (repo *sqliteRepo) Delete(ctx context.Context, id string) error {
	res, err := repo.dbConn.ExecContext(ctx, deleteImageQuery, id)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return repositories.NewNotFoundError(fmt.Sprintf("generated image %s", id))
	}

	return nil
}

func (repo *sqliteRepo) DeleteByMode(ctx context.Context, mode entities.GenerationMode) error {
	_, err := repo.dbConn.ExecContext(ctx, deleteImagesByModeQuery, string(mode))

	return err
}
