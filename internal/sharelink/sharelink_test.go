package sharelink

import (
	"encoding/base64"
	"errors"
	"reflect"
	"testing"
	"time"

	"tribunalsync/client/internal/store"
)

func TestRoundTrip(t *testing.T) {
	units := []store.Unit{{ID: "u1", Name: "Civil", Color: "blue"}}
	events := []store.Event{{
		ID:        "e1",
		Title:     "Audiencia",
		StartTime: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		UnitID:    "u1",
		Type:      store.EventTypeHearing,
		Status:    store.StatusPending,
	}}

	fragment, err := Encode(units, events)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	gotUnits, gotEvents, err := Decode(fragment)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(gotUnits, units) {
		t.Errorf("units round trip mismatch:\n got %+v\nwant %+v", gotUnits, units)
	}
	if !reflect.DeepEqual(gotEvents, events) {
		t.Errorf("events round trip mismatch:\n got %+v\nwant %+v", gotEvents, events)
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	badJSON := base64.RawURLEncoding.EncodeToString([]byte("{not json"))
	wrongSchema := base64.RawURLEncoding.EncodeToString([]byte(`{"schema":"otra-cosa/v9"}`))
	noSchema := base64.RawURLEncoding.EncodeToString([]byte(`{"units":[],"events":[]}`))

	for name, fragment := range map[string]string{
		"bad base64":   "!!not-base64!!",
		"bad json":     badJSON,
		"wrong schema": wrongSchema,
		"no schema":    noSchema,
	} {
		if _, _, err := Decode(fragment); !errors.Is(err, ErrBadPayload) {
			t.Errorf("%s: expected ErrBadPayload, got %v", name, err)
		}
	}
}
