package persona

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Service errors
var (
	ErrNotFound       = errors.New("persona not found")
	ErrInvalidCatalog = errors.New("invalid persona catalog")
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// Persona is a historical figure the chat endpoints can speak as.
type Persona struct {
	ID           string   `yaml:"id"           firestore:"-"`
	Name         string   `yaml:"name"         firestore:"name"`
	Tagline      string   `yaml:"tagline"      firestore:"tagline"`
	Greeting     string   `yaml:"greeting"     firestore:"greeting"`
	SystemPrompt string   `yaml:"systemPrompt" firestore:"system_prompt"`
	Tags         []string `yaml:"tags"         firestore:"tags"`
}

// Service provides read access to the persona catalog. List returns
// personas ordered by ID.
type Service interface {
	List(ctx context.Context) ([]Persona, error)
	Get(ctx context.Context, id string) (*Persona, error)
}

// ValidID reports whether id is a lowercase slug usable as a persona ID.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Validate checks a single persona.
func (p *Persona) Validate() error {
	switch {
	case !ValidID(p.ID):
		return fmt.Errorf("%w: id %q must be a lowercase slug", ErrInvalidCatalog, p.ID)
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: persona %q has no name", ErrInvalidCatalog, p.ID)
	case strings.TrimSpace(p.SystemPrompt) == "":
		return fmt.Errorf("%w: persona %q has no system prompt", ErrInvalidCatalog, p.ID)
	}
	return nil
}
