package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by store lookups when no record carries the
// requested key.
var ErrNotFound = errors.New("record not found")

// Resource names one of the importable/exportable record types.
type Resource string

const (
	ResourceUsers    Resource = "users"
	ResourceArticles Resource = "articles"
	ResourceComments Resource = "comments"
)

func ParseResource(s string) (Resource, error) {
	switch Resource(strings.ToLower(strings.TrimSpace(s))) {
	case ResourceUsers:
		return ResourceUsers, nil
	case ResourceArticles:
		return ResourceArticles, nil
	case ResourceComments:
		return ResourceComments, nil
	default:
		return "", fmt.Errorf("unknown resource %q", s)
	}
}

// Ref is a cross-record reference supplied by an untrusted source. It is
// either an internal sequential id (plain integer, or integer-like string)
// or an external opaque identifier that must be resolved via lookup.
type Ref struct {
	id       int64
	external string
	set      bool
}

func InternalRef(id int64) Ref   { return Ref{id: id, set: true} }
func ExternalRef(ext string) Ref { return Ref{external: ext, set: true} }

// ParseRef interprets a raw field value as a reference. Integer values and
// integer-like strings are taken as internal ids directly; any other
// non-empty string (the `-` separator of a UUID being the common case) is
// treated as an external identifier.
func ParseRef(v any) (Ref, bool) {
	switch t := v.(type) {
	case nil:
		return Ref{}, false
	case int:
		return InternalRef(int64(t)), true
	case int64:
		return InternalRef(t), true
	case float64:
		if t == float64(int64(t)) {
			return InternalRef(int64(t)), true
		}
		return Ref{}, false
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return Ref{}, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return InternalRef(n), true
		}
		return ExternalRef(s), true
	default:
		return Ref{}, false
	}
}

func (r Ref) IsZero() bool { return !r.set }

// Internal reports the internal id carried by the reference, when it has one.
func (r Ref) Internal() (int64, bool) {
	if !r.set || r.external != "" {
		return 0, false
	}
	return r.id, true
}

func (r Ref) External() string { return r.external }

func (r Ref) String() string {
	if r.external != "" {
		return r.external
	}
	return strconv.FormatInt(r.id, 10)
}

// Record is the tagged variant produced by validation. Only the three
// resource types implement it.
type Record interface {
	Resource() Resource
}

type User struct {
	ExternalID string
	Email      string
	Name       string
	Role       string
	Active     bool
}

func (User) Resource() Resource { return ResourceUsers }

type Article struct {
	ExternalID  string
	Slug        string
	Title       string
	Description string
	Body        string
	Status      string
	PublishedAt *time.Time
	Author      Ref
}

func (Article) Resource() Resource { return ResourceArticles }

type Comment struct {
	ExternalID string
	Body       string
	Article    Ref
	Author     Ref
}

func (Comment) Resource() Resource { return ResourceComments }

// Stored is a record as read back from the store, carrying its internal id.
type Stored interface {
	Record
	InternalID() int64
}

type StoredUser struct {
	ID         int64
	ExternalID string
	Email      string
	Name       string
	Role       string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (StoredUser) Resource() Resource { return ResourceUsers }
func (u StoredUser) InternalID() int64 { return u.ID }

type StoredArticle struct {
	ID          int64
	ExternalID  string
	Slug        string
	Title       string
	Description string
	Body        string
	Status      string
	PublishedAt *time.Time
	AuthorID    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (StoredArticle) Resource() Resource { return ResourceArticles }
func (a StoredArticle) InternalID() int64 { return a.ID }

type StoredComment struct {
	ID         int64
	ExternalID string
	Body       string
	ArticleID  int64
	AuthorID   int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (StoredComment) Resource() Resource { return ResourceComments }
func (c StoredComment) InternalID() int64 { return c.ID }
