package model

import "github.com/oklog/ulid/v2"

// NewID returns a ULID string. ULIDs sort by creation time, which keeps
// listing queries cheap and log lines easy to correlate.
func NewID() string {
	return ulid.Make().String()
}
