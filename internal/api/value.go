package api

import (
	"bytes"
	"encoding/json"
)

// marshalValue re-encodes an already-decoded JSON value back to raw bytes
// so storage.Value can hold it opaquely. nil becomes an empty payload.
func marshalValue(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// normalizeValue takes a request's already-parsed "value" field and
// collapses a literal JSON null to an empty payload, same as marshalValue
// does for a Go nil. raw is never nil here — the caller rejects an absent
// "value" key as BAD_REQUEST before calling this.
func normalizeValue(raw json.RawMessage) []byte {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}
