package events

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Frame converts an event into a protobuf Struct for the wire
func Frame(e Event) (*structpb.Struct, error) {
	payload := make(map[string]any, len(e.Payload))
	for k, v := range e.Payload {
		payload[k] = wireValue(v)
	}
	frame, err := structpb.NewStruct(map[string]any{
		"sequence": float64(e.Sequence),
		"name":     e.Name,
		"time":     e.Time.Format(time.RFC3339Nano),
		"payload":  payload,
	})
	if err != nil {
		return nil, fmt.Errorf("build frame: %w", err)
	}
	return frame, nil
}

// MarshalFrame encodes an event as binary protobuf, or as protojson when
// asJSON is set
func MarshalFrame(e Event, asJSON bool) ([]byte, error) {
	frame, err := Frame(e)
	if err != nil {
		return nil, err
	}
	if asJSON {
		return protojson.Marshal(frame)
	}
	return proto.Marshal(frame)
}

// wireValue maps payload values onto what structpb accepts
func wireValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string, int, int32, int64, uint32, uint64, float32, float64:
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = wireValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = wireValue(item)
		}
		return out
	case map[string]int:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
