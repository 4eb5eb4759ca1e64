package audit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/yairfalse/birthmark/pkg/resource"
)

// Payload is a parsed CloudTrail event document. Lookups use dotted paths;
// numeric segments index arrays ("responseElements.instancesSet.items.0.instanceId").
type Payload struct {
	v *fastjson.Value
}

// ParsePayload parses a raw CloudTrailEvent JSON document.
func ParsePayload(raw string) (Payload, error) {
	if strings.TrimSpace(raw) == "" {
		return Payload{}, fmt.Errorf("%w: empty event document", resource.ErrMalformedPayload)
	}
	v, err := fastjson.Parse(raw)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", resource.ErrMalformedPayload, err)
	}
	if v.Type() != fastjson.TypeObject {
		return Payload{}, fmt.Errorf("%w: event document is %s, not an object", resource.ErrMalformedPayload, v.Type())
	}
	return Payload{v: v}, nil
}

// MustParsePayload is ParsePayload for fixtures; it panics on error.
func MustParsePayload(raw string) Payload {
	p, err := ParsePayload(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Payload) get(path string) *fastjson.Value {
	if p.v == nil || path == "" {
		return nil
	}
	return p.v.Get(strings.Split(path, ".")...)
}

// String returns the scalar at path as a string, or "" when the path is
// missing or holds an object or array.
func (p Payload) String(path string) string {
	return scalar(p.get(path))
}

// Strings returns field from every element of the array at path.
// Elements without the field are skipped.
func (p Payload) Strings(path, field string) []string {
	v := p.get(path)
	if v == nil || v.Type() != fastjson.TypeArray {
		return nil
	}
	items, _ := v.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := scalar(item.Get(strings.Split(field, ".")...)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the length of the array at path, or 0.
func (p Payload) Len(path string) int {
	v := p.get(path)
	if v == nil || v.Type() != fastjson.TypeArray {
		return 0
	}
	items, _ := v.Array()
	return len(items)
}

// EventName returns the top-level eventName.
func (p Payload) EventName() string { return p.String("eventName") }

// EventSource returns the top-level eventSource (e.g. "ec2.amazonaws.com").
func (p Payload) EventSource() string { return p.String("eventSource") }

// ErrorCode returns the errorCode of a failed call, or "".
func (p Payload) ErrorCode() string { return p.String("errorCode") }

// Succeeded reports whether the recorded call did not fail.
func (p Payload) Succeeded() bool {
	return p.ErrorCode() == ""
}

// Creator returns the acting identity: userIdentity.arn, then
// principalId, then invokedBy.
func (p Payload) Creator() string {
	for _, path := range []string{"userIdentity.arn", "userIdentity.principalId", "userIdentity.invokedBy"} {
		if s := p.String(path); s != "" {
			return s
		}
	}
	return ""
}

func scalar(v *fastjson.Value) string {
	if v == nil {
		return ""
	}
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return strconv.FormatInt(n, 10)
		}
		return v.String()
	case fastjson.TypeTrue:
		return "true"
	case fastjson.TypeFalse:
		return "false"
	default:
		return ""
	}
}
