package storage

import "encoding/json"

// Values are stored as JSON, decimals in their exact string form.
func encodeValue(v any) ([]byte, error) { return json.Marshal(v) }

func decodeValue(b []byte, v any) error { return json.Unmarshal(b, v) }
