package models

import "time"

// KVPair is a generic key/value entry (API keys, runtime settings).
type KVPair struct {
	Key       string    `json:"key" badgerhold:"unique"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
