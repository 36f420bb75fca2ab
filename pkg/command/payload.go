package command

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Payload is the loosely typed argument map a command receives.
type Payload map[string]any

// Decode copies the payload into out, a pointer to a struct with
// mapstructure tags. Query-string values are strings, so decoding is weakly
// typed: "3" fills an int field and "true" fills a bool.
func (p Payload) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(p))
}

// Without returns a copy of p minus the named keys.
func (p Payload) Without(keys ...string) Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Request is a parsed command invocation.
type Request struct {
	Cmd     string
	Payload Payload
}

// ParseRequest extracts the command name and payload from a decoded JSON body
// or query map. The name comes from "cmd" or "command"; arguments come from a
// nested "payload" object, falling back to the remaining top-level fields.
func ParseRequest(source map[string]any) Request {
	req := Request{Cmd: firstString(source, "cmd", "command")}

	switch nested := source["payload"].(type) {
	case map[string]any:
		req.Payload = Payload(nested)
		return req
	case string:
		var decoded map[string]any
		if strings.TrimSpace(nested) != "" && json.Unmarshal([]byte(nested), &decoded) == nil {
			req.Payload = Payload(decoded)
			return req
		}
	}

	req.Payload = Payload(source).Without("cmd", "command")
	return req
}

// QueryMap flattens query values, keeping the first value of each key.
func QueryMap(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// firstString returns the first non-empty value among keys. Scalars are
// stringified so a numeric or boolean name reaches the dispatcher as an
// unknown command instead of reading as absent.
func firstString(source map[string]any, keys ...string) string {
	for _, k := range keys {
		var s string
		switch v := source[k].(type) {
		case string:
			s = v
		case float64:
			s = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(v)
		case json.Number:
			s = v.String()
		case int:
			s = strconv.Itoa(v)
		}
		if s != "" {
			return s
		}
	}
	return ""
}
