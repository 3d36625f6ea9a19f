package rpc

import "time"

// EncodeTimestamp renders a time value the way timestamp-codec fields travel
// on the wire.
func EncodeTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// DecodeTimestamp revives a wire timestamp. It accepts any RFC 3339 string,
// with or without fractional seconds.
func DecodeTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
