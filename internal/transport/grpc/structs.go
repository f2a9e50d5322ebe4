package grpc

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

// toStruct encodes v through its JSON tags, so a response carries the same
// field names as the HTTP export.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return structpb.NewStruct(m)
}

// toList encodes a slice as a list of JSON objects.
func toList[T any](items []T) ([]any, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := []any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

func stringField(req *structpb.Struct, name string) string {
	v, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
		return strings.TrimSpace(s.StringValue)
	}
	return ""
}

// intField reads a whole number. JSON clients may send it as a string.
func intField(req *structpb.Struct, name string) (int, bool, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, false, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, true, fmt.Errorf("%s must be a whole number", name)
		}
		return int(n), true, nil
	case *structpb.Value_StringValue:
		s := strings.TrimSpace(k.StringValue)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, true, fmt.Errorf("%s must be a whole number", name)
		}
		return n, true, nil
	case *structpb.Value_NullValue:
		return 0, false, nil
	default:
		return 0, true, fmt.Errorf("%s must be a number", name)
	}
}

func boolField(req *structpb.Struct, name string) (bool, bool, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return false, false, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return k.BoolValue, true, nil
	case *structpb.Value_NullValue:
		return false, false, nil
	default:
		return false, true, fmt.Errorf("%s must be a boolean", name)
	}
}
