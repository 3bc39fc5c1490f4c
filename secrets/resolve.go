package secrets

import (
	"os"
	"strings"

	"github.com/teranos/cadence/errors"
)

// ExpressionKind discriminates the value-expression variants a job
// environment entry may carry.
type ExpressionKind int

const (
	// KindLiteral is a plain string passed through unchanged
	KindLiteral ExpressionKind = iota
	// KindSecret resolves through the secrets store ("secret:KEY")
	KindSecret
	// KindEnv resolves from the process environment ("env:VAR")
	KindEnv
	// KindFile resolves to trimmed file contents ("file:PATH")
	KindFile
)

// ValueExpression is one parsed environment value. Expressions are
// parsed once at descriptor build time, not re-matched at use time.
type ValueExpression struct {
	Kind ExpressionKind
	Arg  string // reference target, or the literal itself
}

// ParseValueExpression classifies a raw environment value. The prefix
// is matched exactly at the start of the string.
func ParseValueExpression(raw string) ValueExpression {
	switch {
	case strings.HasPrefix(raw, "secret:"):
		return ValueExpression{Kind: KindSecret, Arg: strings.TrimPrefix(raw, "secret:")}
	case strings.HasPrefix(raw, "env:"):
		return ValueExpression{Kind: KindEnv, Arg: strings.TrimPrefix(raw, "env:")}
	case strings.HasPrefix(raw, "file:"):
		return ValueExpression{Kind: KindFile, Arg: strings.TrimPrefix(raw, "file:")}
	default:
		return ValueExpression{Kind: KindLiteral, Arg: raw}
	}
}

// String renders the expression back to its raw form.
func (e ValueExpression) String() string {
	switch e.Kind {
	case KindSecret:
		return "secret:" + e.Arg
	case KindEnv:
		return "env:" + e.Arg
	case KindFile:
		return "file:" + e.Arg
	default:
		return e.Arg
	}
}

// ResolveExpression evaluates a single parsed expression against the store.
func (s *Store) ResolveExpression(expr ValueExpression) (string, error) {
	switch expr.Kind {
	case KindSecret:
		v, ok, err := s.Get(expr.Arg)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errors.Validationf("Secret not found: %s", expr.Arg)
		}
		return v, nil

	case KindEnv:
		v, ok := os.LookupEnv(expr.Arg)
		if !ok {
			return "", errors.Validationf("Environment variable not found: %s", expr.Arg)
		}
		return v, nil

	case KindFile:
		contents, err := os.ReadFile(expr.Arg)
		if err != nil {
			return "", errors.Validationf("Cannot read file: %s", expr.Arg)
		}
		return strings.TrimSpace(string(contents)), nil

	default:
		return expr.Arg, nil
	}
}

// Resolve evaluates every value expression in mapping and returns the
// resolved mapping. A nil input resolves to the empty mapping.
func (s *Store) Resolve(mapping map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(mapping))
	for name, raw := range mapping {
		value, err := s.ResolveExpression(ParseValueExpression(raw))
		if err != nil {
			return nil, err
		}
		resolved[name] = value
	}
	return resolved, nil
}
