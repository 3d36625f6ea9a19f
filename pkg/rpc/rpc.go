// Package rpc is the runtime behind generated contract artifacts. Generated
// clients forward typed calls through a Caller; services register byte-level
// handlers on a Dispatcher. The metadata types mirror the maps the compiler
// emits into the aggregate artifact.
package rpc

import "context"

// Handler serves one dispatch pattern at the wire level. The payload and the
// response are both JSON.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Caller is the transport behind a generated client. Payload is marshaled to
// JSON; when result is non-nil the response is unmarshaled into it. The
// in-process Dispatcher and the HTTP bridge client both implement it.
type Caller interface {
	Call(ctx context.Context, pattern string, payload any, result any) error
}

// Args carries a multi-parameter payload keyed by parameter name. Generated
// forwarders build one when a method takes more than one parameter.
type Args map[string]any

// CodecTimestamp marks a field that travels as an RFC 3339 string and is
// revived into a time value by the consumer.
const CodecTimestamp = "timestamp"

// CodecTable maps type names to their field codec tables, wire field name to
// codec id. Nested references use the "@Type" form.
type CodecTable map[string]map[string]string

// Param is one named parameter of a contract method.
type Param struct {
	Name string
	Type string
}

// Signature is the flattened shape of one contract method.
type Signature struct {
	Params     []Param
	Result     string
	HasContext bool
	HasError   bool
}

// PatternCodec records which parts of a pattern's payload involve
// codec-bearing types.
type PatternCodec struct {
	Params map[string]string
	Result string
}
