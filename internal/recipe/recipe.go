// Package recipe implements the recipe catalog: creation, lookup, search by
// title or ingredient, and deletion, persisted in PostgreSQL.
package recipe

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	// ErrNotFound is returned when a recipe id does not exist.
	ErrNotFound = errors.New("recipe: not found")

	// ErrForbidden is returned when a user modifies a recipe they do not
	// own (and is not an admin).
	ErrForbidden = errors.New("recipe: not the recipe author")
)

// Author is the denormalized author block attached to a recipe.
type Author struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Recipe is a published recipe.
type Recipe struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Ingredients []string  `json:"ingredients"`
	Steps       []string  `json:"steps"`
	ImageURL    string    `json:"image_url,omitempty"`
	AuthorID    string    `json:"author_id"`
	CreatedAt   time.Time `json:"created_at"`
	Author      Author    `json:"author"`
}

// Draft is the user-supplied payload for creating or updating a recipe.
type Draft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
}

// Validate checks the draft against content rules.
func (d Draft) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.Required, validation.Length(3, 120)),
		validation.Field(&d.Description, validation.Length(0, 2000)),
		validation.Field(&d.Ingredients, validation.Required, validation.Length(1, 50),
			validation.Each(validation.Required, validation.Length(1, 200))),
		validation.Field(&d.Steps, validation.Required, validation.Length(1, 50),
			validation.Each(validation.Required, validation.Length(1, 2000))),
	)
}
