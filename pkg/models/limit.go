package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// unlimitedText is the wire and YAML spelling of an unlimited limit.
const unlimitedText = "unlimited"

// Limit is a plan quota: either a finite count or unlimited.
// Compare through Allows/Remaining; never read the count without checking
// IsUnlimited first. The zero value is Limited(0).
//
// Storage: NULL means unlimited. JSON/YAML: an integer or "unlimited".
type Limit struct {
	n         int
	unlimited bool
}

// Limited returns a finite limit of n. Negative values are treated as 0.
func Limited(n int) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{n: n}
}

// Unlimited returns the unlimited limit.
func Unlimited() Limit {
	return Limit{unlimited: true}
}

// IsUnlimited reports whether the limit has no bound.
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Count returns the finite bound. ok is false for unlimited limits.
func (l Limit) Count() (n int, ok bool) {
	if l.unlimited {
		return 0, false
	}
	return l.n, true
}

// Allows reports whether one more unit fits when used units are already taken.
func (l Limit) Allows(used int) bool {
	return l.unlimited || used < l.n
}

// Remaining returns what is left after used units, floored at zero.
func (l Limit) Remaining(used int) Limit {
	if l.unlimited {
		return l
	}
	if used >= l.n {
		return Limited(0)
	}
	return Limited(l.n - used)
}

func (l Limit) String() string {
	if l.unlimited {
		return unlimitedText
	}
	return strconv.Itoa(l.n)
}

// ParseLimit parses "unlimited" or a non-negative integer.
func ParseLimit(s string) (Limit, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, unlimitedText) {
		return Unlimited(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return Limit{}, fmt.Errorf("invalid limit %q: want a non-negative integer or %q", s, unlimitedText)
	}
	return Limited(n), nil
}

// MarshalJSON implements json.Marshaler.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return json.Marshal(unlimitedText)
	}
	return json.Marshal(l.n)
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Limit) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n < 0 {
			return fmt.Errorf("invalid limit %d: must not be negative", n)
		}
		*l = Limited(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid limit %s", string(data))
	}
	parsed, err := ParseLimit(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: limit must be a scalar", node.Line)
	}
	parsed, err := ParseLimit(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*l = parsed
	return nil
}

// Value implements driver.Valuer for database serialization.
func (l Limit) Value() (driver.Value, error) {
	if l.unlimited {
		return nil, nil
	}
	return int64(l.n), nil
}

// Scan implements sql.Scanner for database deserialization.
func (l *Limit) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = Unlimited()
	case int64:
		*l = Limited(int(v))
	case int32:
		*l = Limited(int(v))
	case int:
		*l = Limited(v)
	default:
		return fmt.Errorf("cannot scan %T into Limit", value)
	}
	return nil
}
