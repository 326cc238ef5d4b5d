package recipe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store persists recipes in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a recipe store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new recipe authored by authorID and returns it.
func (s *Store) Create(ctx context.Context, authorID string, d Draft) (Recipe, error) {
	r := Recipe{
		ID:          uuid.NewString(),
		Title:       d.Title,
		Description: d.Description,
		Ingredients: d.Ingredients,
		Steps:       d.Steps,
		AuthorID:    authorID,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO recipes (id, title, description, ingredients, steps, author_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		r.ID, r.Title, r.Description, pq.Array(r.Ingredients), pq.Array(r.Steps), r.AuthorID,
	).Scan(&r.CreatedAt)
	if err != nil {
		return Recipe{}, fmt.Errorf("recipe: insert: %w", err)
	}
	return r, nil
}

// GetByID returns a recipe with its author block populated.
func (s *Store) GetByID(ctx context.Context, id string) (Recipe, error) {
	var r Recipe
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.title, r.description, r.ingredients, r.steps,
		       COALESCE(r.image_url, ''), r.author_id, r.created_at,
		       u.email, u.role
		FROM recipes r
		JOIN users u ON u.id = r.author_id
		WHERE r.id = $1`,
		id,
	).Scan(&r.ID, &r.Title, &r.Description, pq.Array(&r.Ingredients), pq.Array(&r.Steps),
		&r.ImageURL, &r.AuthorID, &r.CreatedAt, &r.Author.Email, &r.Author.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return Recipe{}, ErrNotFound
	}
	if err != nil {
		return Recipe{}, fmt.Errorf("recipe: get %s: %w", id, err)
	}
	return r, nil
}

// Search returns recipes whose title or any ingredient matches query,
// newest first. An empty query lists the latest recipes.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Recipe, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.title, r.description, r.ingredients, r.steps,
		       COALESCE(r.image_url, ''), r.author_id, r.created_at,
		       u.email, u.role
		FROM recipes r
		JOIN users u ON u.id = r.author_id
		WHERE $1 = ''
		   OR r.title ILIKE '%' || $1 || '%'
		   OR EXISTS (
		        SELECT 1 FROM unnest(r.ingredients) ing
		        WHERE ing ILIKE '%' || $1 || '%')
		ORDER BY r.created_at DESC
		LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recipe: search: %w", err)
	}
	defer rows.Close()

	var out []Recipe
	for rows.Next() {
		var r Recipe
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, pq.Array(&r.Ingredients),
			pq.Array(&r.Steps), &r.ImageURL, &r.AuthorID, &r.CreatedAt,
			&r.Author.Email, &r.Author.Role); err != nil {
			return nil, fmt.Errorf("recipe: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Update replaces the editable fields of a recipe. The image URL is managed
// separately through SetImageURL.
func (s *Store) Update(ctx context.Context, id string, d Draft) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recipes
		SET title = $2, description = $3, ingredients = $4, steps = $5
		WHERE id = $1`,
		id, d.Title, d.Description, pq.Array(d.Ingredients), pq.Array(d.Steps))
	if err != nil {
		return fmt.Errorf("recipe: update %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetImageURL records the public URL of the recipe photo.
func (s *Store) SetImageURL(ctx context.Context, id, url string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE recipes SET image_url = $2 WHERE id = $1`, id, url)
	if err != nil {
		return fmt.Errorf("recipe: set image %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AuthorOf returns the author id of a recipe.
func (s *Store) AuthorOf(ctx context.Context, id string) (string, error) {
	var authorID string
	err := s.db.QueryRowContext(ctx, `SELECT author_id FROM recipes WHERE id = $1`, id).Scan(&authorID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("recipe: author of %s: %w", id, err)
	}
	return authorID, nil
}

// Delete removes a recipe.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recipes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("recipe: delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
