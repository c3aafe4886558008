// Package id mints short prefixed identifiers for client-side objects.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for identifiers minted by the client.
const (
	PrefixOperation = "op"  // graphql-ws subscription operations
	PrefixSSEClient = "sse" // local event stream clients
	PrefixToken     = "tok" // locally issued dev tokens
)

// Operation ids are lowercase alphanumerics.
const (
	operationAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	operationLength   = 12
)

// Generate returns prefix + "-" + a 21 character NanoID,
// e.g. "sse-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	s, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate %s id: %w", prefix, err)
	}
	return prefix + "-" + s, nil
}

// Operation returns a fresh subscription operation id such as "op-4f9k2m0x7qzc".
// Operation ids only need to be unique within one socket.
func Operation() (string, error) {
	s, err := gonanoid.Generate(operationAlphabet, operationLength)
	if err != nil {
		return "", fmt.Errorf("generate operation id: %w", err)
	}
	return PrefixOperation + "-" + s, nil
}
