package capability

import (
	"fmt"
	"strings"
)

// Delimiter separates permission segments
const Delimiter = "::"

// Permission is a parsed permission declaration of the form
// resource::scope or resource::scope::identifier
type Permission struct {
	Resource   string
	Scope      string
	Identifier string
}

// ParsePermission parses a permission string, rejecting malformed input.
// A wrong segment count is a hard error: it fails the whole plugin load,
// unlike a well-formed permission the capability table does not know.
func ParsePermission(s string) (Permission, error) {
	if s == "" {
		return Permission{}, fmt.Errorf("empty permission string")
	}

	segments := strings.Split(s, Delimiter)
	switch len(segments) {
	case 2:
		if segments[0] == "" || segments[1] == "" {
			return Permission{}, fmt.Errorf("malformed permission %q: empty segment", s)
		}
		return Permission{Resource: segments[0], Scope: segments[1]}, nil
	case 3:
		if segments[0] == "" || segments[1] == "" || segments[2] == "" {
			return Permission{}, fmt.Errorf("malformed permission %q: empty segment", s)
		}
		return Permission{Resource: segments[0], Scope: segments[1], Identifier: segments[2]}, nil
	default:
		return Permission{}, fmt.Errorf("malformed permission %q: expected resource::scope or resource::scope::identifier", s)
	}
}

// String renders the permission back to its wire form
func (p Permission) String() string {
	if p.Identifier != "" {
		return p.Resource + Delimiter + p.Scope + Delimiter + p.Identifier
	}
	return p.Resource + Delimiter + p.Scope
}

// Key identifies the capability table row for this permission
func (p Permission) Key() string {
	return p.Resource + Delimiter + p.Scope
}
