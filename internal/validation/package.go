// Package validation provides input validation for package publishing and
// reviews. Validators run before any data is persisted so invalid submissions
// are rejected early.
package validation

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// PublishInput holds the fields checked before a package is created.
type PublishInput struct {
	Name        string
	Description string
	Category    string
	Version     string
	Author      string
	MagnetURI   string
}

// ValidatePublish checks the required publish fields. Category existence is
// checked separately against the categories table.
func ValidatePublish(in PublishInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if strings.TrimSpace(in.Category) == "" {
		return fmt.Errorf("category is required")
	}
	if strings.TrimSpace(in.Author) == "" {
		return fmt.Errorf("author is required")
	}
	if err := ValidateVersion(in.Version); err != nil {
		return err
	}
	return ValidateMagnetURI(in.MagnetURI)
}

// ValidateVersion validates that a version string is a valid semantic version
func ValidateVersion(versionStr string) error {
	if _, err := version.NewVersion(versionStr); err != nil {
		return fmt.Errorf("invalid version: %w", err)
	}
	return nil
}

// ValidateMagnetURI checks that the distribution link is a magnet URI.
func ValidateMagnetURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return fmt.Errorf("magnet_uri is required")
	}
	if !strings.HasPrefix(uri, "magnet:?") {
		return fmt.Errorf("magnet_uri must start with magnet:?")
	}
	return nil
}

// CompareVersions compares two semantic versions
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareVersions(v1Str, v2Str string) (int, error) {
	v1, err := version.NewVersion(v1Str)
	if err != nil {
		return 0, fmt.Errorf("invalid version v1: %w", err)
	}

	v2, err := version.NewVersion(v2Str)
	if err != nil {
		return 0, fmt.Errorf("invalid version v2: %w", err)
	}

	return v1.Compare(v2), nil
}
