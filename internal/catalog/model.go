// Package catalog keeps the reference data items point at: categories and suppliers.
package catalog

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrNameRequired  = errors.New("name is required")
	ErrAlreadyExists = errors.New("name already exists")
	ErrInUse         = errors.New("still referenced by inventory items")
)

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Supplier struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ContactDetails string    `json:"contact_details,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Query is a name search with pagination.
type Query struct {
	Search string
	Limit  int
	Offset int
}

func (q Query) normalized() Query {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 10
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// CategoryRequest payload of creation and partial update.
// swagger:model CategoryRequest
type CategoryRequest struct {
	Name        *string `json:"name"        example:"Peripherals"`
	Description *string `json:"description" example:"Keyboards, mice and headsets"`
}

// SupplierRequest payload of creation and partial update.
// swagger:model SupplierRequest
type SupplierRequest struct {
	Name           *string `json:"name"            example:"Keychron"`
	ContactDetails *string `json:"contact_details" example:"sales@keychron.example"`
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// NewCategory builds a category from a creation request.
func (r CategoryRequest) NewCategory() (*Category, error) {
	c := &Category{ID: uuid.NewString()}
	if err := r.Apply(c); err != nil {
		return nil, err
	}
	if c.Name == "" {
		return nil, ErrNameRequired
	}
	return c, nil
}

// Apply copies the fields that were sent onto c.
func (r CategoryRequest) Apply(c *Category) error {
	if r.Name != nil {
		if trimmed(r.Name) == "" {
			return ErrNameRequired
		}
		c.Name = trimmed(r.Name)
	}
	if r.Description != nil {
		c.Description = *r.Description
	}
	return nil
}

func (r SupplierRequest) NewSupplier() (*Supplier, error) {
	s := &Supplier{ID: uuid.NewString()}
	if err := r.Apply(s); err != nil {
		return nil, err
	}
	if s.Name == "" {
		return nil, ErrNameRequired
	}
	return s, nil
}

func (r SupplierRequest) Apply(s *Supplier) error {
	if r.Name != nil {
		if trimmed(r.Name) == "" {
			return ErrNameRequired
		}
		s.Name = trimmed(r.Name)
	}
	if r.ContactDetails != nil {
		s.ContactDetails = *r.ContactDetails
	}
	return nil
}
