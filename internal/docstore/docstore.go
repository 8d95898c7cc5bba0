package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrNotFound is returned by Get when no document exists for the id.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidField is returned when a query or write names a field that is
	// not a plain identifier.
	ErrInvalidField = errors.New("invalid field name")
)

// TimeLayout is the on-disk timestamp layout. It is fixed width so lexical
// order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

type serverTimestamp struct{}

// ServerTimestamp is a sentinel field value. Stores replace it with their own
// current time when the document is written.
var ServerTimestamp = serverTimestamp{}

// Fields is the content of a document.
type Fields map[string]any

// Direction is the sort direction of a query.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter is an equality condition on a single field.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from one collection. All filters must match.
// OrderBy is optional; ties are broken by document id in the same direction.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Direction  Direction
}

// Where returns a copy of q with an additional equality filter.
func (q Query) Where(field string, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

// Validate checks collection and field names.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("query: collection is required")
	}
	for _, f := range q.Filters {
		if !ValidField(f.Field) {
			return fmt.Errorf("%w: %q", ErrInvalidField, f.Field)
		}
	}
	if q.OrderBy != "" && !ValidField(q.OrderBy) {
		return fmt.Errorf("%w: %q", ErrInvalidField, q.OrderBy)
	}
	return nil
}

// Document is a single stored record.
type Document struct {
	Collection string
	ID         string
	Fields     Fields
	CreateTime time.Time
	UpdateTime time.Time
}

// String returns the string value of a field, or "" when absent or not a string.
func (d Document) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Time parses a timestamp field. It returns the zero time when the field is
// absent or malformed.
func (d Document) Time(field string) time.Time {
	t, err := ParseTime(d.String(field))
	if err != nil {
		return time.Time{}
	}
	return t
}

// ChangeKind describes how a document differs from the previous snapshot.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is one document difference carried by a snapshot.
type Change struct {
	Kind     ChangeKind
	Document Document
}

// Snapshot is the full ordered result of a live query at a point in time.
type Snapshot struct {
	Documents []Document
	Changes   []Change
	ReadTime  time.Time
}

// Store is the document database boundary.
type Store interface {
	// Get reads a single document. It returns ErrNotFound when it does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Set creates or replaces the document with the given id.
	Set(ctx context.Context, collection, id string, fields Fields) error

	// Add creates a document with a generated id and returns the id.
	Add(ctx context.Context, collection string, fields Fields) (string, error)

	// Query runs a one-shot query.
	Query(ctx context.Context, q Query) ([]Document, error)

	// Listen opens a live query. The subscription ends when ctx is cancelled
	// or Close is called.
	Listen(ctx context.Context, q Query) (*Subscription, error)

	Close() error
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidField reports whether name can be used as a field name.
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

// FormatTime formats t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// Resolve validates field names and replaces ServerTimestamp sentinels with now.
// The input map is not modified.
func Resolve(fields Fields, now time.Time) (Fields, error) {
	plain, stamped, err := SplitServerTimestamps(fields)
	if err != nil {
		return nil, err
	}
	for _, k := range stamped {
		plain[k] = FormatTime(now)
	}
	return plain, nil
}

// SplitServerTimestamps validates field names and separates the fields holding
// the ServerTimestamp sentinel from the rest, for backends that assign the
// time themselves. The input map is not modified.
func SplitServerTimestamps(fields Fields) (Fields, []string, error) {
	plain := make(Fields, len(fields))
	var stamped []string
	for k, v := range fields {
		if !ValidField(k) {
			return nil, nil, fmt.Errorf("%w: %q", ErrInvalidField, k)
		}
		if _, ok := v.(serverTimestamp); ok {
			stamped = append(stamped, k)
			continue
		}
		plain[k] = v
	}
	return plain, stamped, nil
}
