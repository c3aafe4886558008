// Package graphql is the single network entry point for server data.
// Subscriptions travel over a persistent websocket; queries and mutations over one-shot HTTP.
package graphql

import (
	"encoding/json"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/mapflag/mapflag-client/internal/errors"
)

// OperationKind is the root operation type of a request.
type OperationKind string

const (
	KindQuery        OperationKind = "query"
	KindMutation     OperationKind = "mutation"
	KindSubscription OperationKind = "subscription"
)

// Request is a GraphQL operation as sent on either channel.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Location points into the request document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is one entry of a response's errors array.
type Error struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Locations  []Location     `json:"locations,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Response is a GraphQL result.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []Error         `json:"errors,omitempty"`
}

// Err converts the errors array into a coded error, or nil when there are none.
// An UNAUTHENTICATED extension code maps to ErrUnauthorized.
func (r *Response) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(r.Errors))
	code := errors.CodeInternal
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
		switch e.Extensions["code"] {
		case "UNAUTHENTICATED":
			code = errors.CodeUnauthorized
		case "FORBIDDEN":
			code = errors.CodeForbidden
		case "BAD_USER_INPUT", "GRAPHQL_VALIDATION_FAILED":
			code = errors.CodeValidation
		}
	}
	return (&errors.Error{Code: code, Message: "graphql: " + strings.Join(msgs, "; ")}).WithDetails(r.Errors)
}

// Decode unmarshals Data into dest.
func (r *Response) Decode(dest any) error {
	if dest == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Data, dest); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "decode graphql data")
	}
	return nil
}

// Classify returns the kind of the operation the request executes:
// the one named by OperationName, or the first one in the document.
func Classify(req Request) (OperationKind, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: req.Query})
	if err != nil {
		return "", errors.Wrap(err, errors.CodeValidation, "parse graphql document")
	}
	if len(doc.Operations) == 0 {
		return "", errors.Validation("graphql document has no operation")
	}

	op := doc.Operations[0]
	if req.OperationName != "" {
		op = doc.Operations.ForName(req.OperationName)
		if op == nil {
			return "", errors.Validationf("operation %q not found in document", req.OperationName)
		}
	}

	switch op.Operation {
	case ast.Subscription:
		return KindSubscription, nil
	case ast.Mutation:
		return KindMutation, nil
	default:
		return KindQuery, nil
	}
}
