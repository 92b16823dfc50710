// Package models - API request types and input validation.
// This file defines the incoming identifiers of limit requests.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Trim surrounding whitespace before validation
// - Category names are case-sensitive; "Login" and "login" are different categories
package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Identifier limits. Client ids end up inside storage keys, so they are kept
// short and free of control characters.
const (
	MaxCategoryLength = 64
	MaxClientIDLength = 256
)

// LimitRequest identifies the request log an API call acts on. Both fields
// come from the URL path.
type LimitRequest struct {
	Category string `json:"category"`
	ClientID string `json:"client_id"`
}

// Normalize trims whitespace from both identifiers.
func (r *LimitRequest) Normalize() {
	r.Category = strings.TrimSpace(r.Category)
	r.ClientID = strings.TrimSpace(r.ClientID)
}

func (r *LimitRequest) Validate() error {
	if r.Category == "" {
		return errors.New("category is required")
	}
	if len(r.Category) > MaxCategoryLength {
		return fmt.Errorf("category must be at most %d bytes", MaxCategoryLength)
	}
	if err := validateIdentifier(r.Category); err != nil {
		return fmt.Errorf("invalid category: %w", err)
	}

	if r.ClientID == "" {
		return errors.New("client_id is required")
	}
	if len(r.ClientID) > MaxClientIDLength {
		return fmt.Errorf("client_id must be at most %d bytes", MaxClientIDLength)
	}
	if err := validateIdentifier(r.ClientID); err != nil {
		return fmt.Errorf("invalid client_id: %w", err)
	}

	return nil
}

func validateIdentifier(s string) error {
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("contains whitespace or control character %q", r)
		}
	}
	return nil
}
