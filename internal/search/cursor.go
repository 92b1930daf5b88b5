package search

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rpattn/contentql/internal/domain"
)

const cursorVersion = 1

var errMalformedCursor = errors.New("cursor is malformed")

// cursorToken is the JSON payload behind an opaque cursor. Entity cursors carry
// the keyset tuple of the last returned row; fan-out cursors carry one entity
// cursor per entity type plus the set of exhausted entity types.
type cursorToken struct {
	Version   int                          `json:"v"`
	Entity    domain.EntityType            `json:"e"`
	Sort      string                       `json:"s"`
	Keys      []any                        `json:"k,omitempty"`
	Positions map[domain.EntityType]string `json:"p,omitempty"`
	Done      []domain.EntityType          `json:"d,omitempty"`
}

func encodeCursor(tok cursorToken) string {
	tok.Version = cursorVersion
	raw, err := json.Marshal(tok)
	if err != nil {
		// keys are always scalar JSON values
		panic(fmt.Sprintf("encode cursor: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(token string) (cursorToken, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return cursorToken{}, errMalformedCursor
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tok cursorToken
	if err := dec.Decode(&tok); err != nil {
		return cursorToken{}, errMalformedCursor
	}
	if tok.Version != cursorVersion {
		return cursorToken{}, fmt.Errorf("unsupported cursor version %d", tok.Version)
	}
	return tok, nil
}

func sortSignature(sorts []boundSort) string {
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		dir := domain.SortDirectionAsc
		if s.desc {
			dir = domain.SortDirectionDesc
		}
		parts[i] = s.column.Property + ":" + string(dir)
	}
	return strings.Join(parts, ",")
}

func encodeKey(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case uuid.UUID:
		return t.String()
	}
	return v
}

func encodeEntityCursor(entity domain.EntityType, sorts []boundSort, keys []any) string {
	encoded := make([]any, len(keys))
	for i, k := range keys {
		encoded[i] = encodeKey(k)
	}
	return encodeCursor(cursorToken{Entity: entity, Sort: sortSignature(sorts), Keys: encoded})
}

// decodeEntityCursor returns the keyset tuple coerced to the sort columns' types.
func decodeEntityCursor(token string, entity domain.EntityType, sorts []boundSort) ([]any, error) {
	tok, err := decodeCursor(token)
	if err != nil {
		return nil, err
	}
	if tok.Entity != entity {
		return nil, fmt.Errorf("cursor belongs to %q, not %q", tok.Entity, entity)
	}
	if tok.Sort != sortSignature(sorts) {
		return nil, errors.New("cursor was issued for a different sort order")
	}
	if len(tok.Keys) != len(sorts) {
		return nil, errMalformedCursor
	}
	keys := make([]any, len(sorts))
	for i, raw := range tok.Keys {
		if raw == nil {
			return nil, errMalformedCursor
		}
		v, err := coerceOperand(sorts[i].column, raw)
		if err != nil {
			return nil, errMalformedCursor
		}
		keys[i] = v
	}
	return keys, nil
}
