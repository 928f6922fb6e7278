// Package sharelink serializes the schedule state into a URL fragment for
// manual cross-device transfer. The fragment is base64-encoded JSON carrying
// a schema marker; anything without the marker is rejected outright.
package sharelink

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"tribunalsync/client/internal/store"
)

const schemaMarker = "tribunal-agenda/v1"

// ErrBadPayload rejects malformed fragments: bad base64, bad JSON, or a
// missing/unknown schema marker. Decoding is all-or-nothing.
var ErrBadPayload = errors.New("invalid share payload")

type payload struct {
	Schema string        `json:"schema"`
	Units  []store.Unit  `json:"units"`
	Events []store.Event `json:"events"`
}

// Encode packs the snapshot into a fragment string.
func Encode(units []store.Unit, events []store.Event) (string, error) {
	data, err := json.Marshal(payload{
		Schema: schemaMarker,
		Units:  units,
		Events: events,
	})
	if err != nil {
		return "", fmt.Errorf("encode share payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode unpacks a fragment back into the snapshot it carries. Timestamps
// come back as native time values through the JSON round trip.
func Decode(fragment string) ([]store.Unit, []store.Event, error) {
	data, err := base64.RawURLEncoding.DecodeString(fragment)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if p.Schema != schemaMarker {
		return nil, nil, fmt.Errorf("%w: unknown schema %q", ErrBadPayload, p.Schema)
	}
	return p.Units, p.Events, nil
}
