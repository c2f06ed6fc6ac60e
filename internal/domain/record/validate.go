package record

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

const maxCommentLength = 2500

// FieldError is a single violated rule on one field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates every violated field of one record.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Validate checks the structural rules for one raw record and produces the
// typed variant. It is pure: no store access, no mutation of the input.
func Validate(resource Resource, raw map[string]any) (Record, error) {
	switch resource {
	case ResourceUsers:
		return validateUser(raw)
	case ResourceArticles:
		return validateArticle(raw)
	case ResourceComments:
		return validateComment(raw)
	default:
		return nil, fmt.Errorf("unknown resource %q", resource)
	}
}

func validateUser(raw map[string]any) (Record, error) {
	verr := &ValidationError{}

	email := stringField(raw, "email")
	if email == "" {
		verr.add("email", "is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		verr.add("email", "must be a valid email address")
	}

	name := stringField(raw, "name")
	if name == "" {
		verr.add("name", "is required")
	}

	active := true
	if v, ok := raw["active"]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			verr.add("active", "must be a boolean")
		} else {
			active = b
		}
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}

	return User{
		ExternalID: externalID(raw),
		Email:      email,
		Name:       name,
		Role:       stringField(raw, "role"),
		Active:     active,
	}, nil
}

func validateArticle(raw map[string]any) (Record, error) {
	verr := &ValidationError{}

	slug := stringField(raw, "slug")
	if slug == "" {
		verr.add("slug", "is required")
	} else if !slugPattern.MatchString(slug) {
		verr.add("slug", "must be lowercase kebab-case (letters, digits, single hyphens)")
	}

	title := stringField(raw, "title")
	if title == "" {
		verr.add("title", "is required")
	}

	body := stringField(raw, "body")
	if body == "" {
		verr.add("body", "is required")
	}

	author, ok := ParseRef(raw["author_id"])
	if !ok {
		verr.add("author_id", "is required")
	}

	status := stringField(raw, "status")
	publishedAt, perr := timeField(raw, "published_at")
	if perr != nil {
		verr.add("published_at", "must be an RFC 3339 timestamp")
	}
	// A publish timestamp is only legal when the article is published (or
	// the status is unset).
	if status == "draft" && publishedAt != nil {
		verr.add("published_at", "must be null when status is draft")
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}

	description := stringField(raw, "description")
	if description == "" {
		description = title
	}

	return Article{
		ExternalID:  externalID(raw),
		Slug:        slug,
		Title:       title,
		Description: description,
		Body:        body,
		Status:      status,
		PublishedAt: publishedAt,
		Author:      author,
	}, nil
}

func validateComment(raw map[string]any) (Record, error) {
	verr := &ValidationError{}

	article, ok := ParseRef(raw["article_id"])
	if !ok {
		verr.add("article_id", "is required")
	}

	author, ok := ParseRef(raw["author_id"])
	if !ok {
		verr.add("author_id", "is required")
	}

	body := stringField(raw, "body")
	if body == "" {
		verr.add("body", "is required")
	} else if utf8.RuneCountInString(body) > maxCommentLength {
		verr.add("body", fmt.Sprintf("must be at most %d characters", maxCommentLength))
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}

	return Comment{
		ExternalID: externalID(raw),
		Body:       body,
		Article:    article,
		Author:     author,
	}, nil
}

func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func timeField(raw map[string]any, key string) (*time.Time, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// externalID keeps an opaque record identifier for round-trip export. Plain
// integer identifiers from untrusted sources are never trusted as internal
// ids and are dropped here; the store assigns identity.
func externalID(raw map[string]any) string {
	ref, ok := ParseRef(raw["id"])
	if !ok {
		return ""
	}
	return ref.External()
}
