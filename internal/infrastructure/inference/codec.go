// Package inference provides landmark models: a gRPC client for a remote
// detector, the matching server, and a replay model for offline runs.
package inference

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

// Requests and responses are google.protobuf.Struct values:
//
//	request:  {width, height, timestamp_ms, frame: base64}
//	response: {face: [{x,y,z}], blendshapes: {name: score}, hands: [[{x,y,z}]]}
const (
	serviceName  = "xsimwink.landmarks.v1.Landmarks"
	detectMethod = "/" + serviceName + "/Detect"
)

func encodeFrame(frame ports.Frame, ts time.Time) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"width":        float64(frame.Width),
		"height":       float64(frame.Height),
		"timestamp_ms": float64(ts.UnixMilli()),
		"frame":        base64.StdEncoding.EncodeToString(frame.Data),
	})
}

func decodeFrame(req *structpb.Struct) (ports.Frame, time.Time, error) {
	fields := req.GetFields()
	width := int(fields["width"].GetNumberValue())
	height := int(fields["height"].GetNumberValue())
	if width <= 0 || height <= 0 {
		return ports.Frame{}, time.Time{}, fmt.Errorf("%w: frame size %dx%d", domain.ErrMalformedPayload, width, height)
	}
	data, err := base64.StdEncoding.DecodeString(fields["frame"].GetStringValue())
	if err != nil {
		return ports.Frame{}, time.Time{}, fmt.Errorf("%w: frame data: %v", domain.ErrMalformedPayload, err)
	}
	ts := time.UnixMilli(int64(fields["timestamp_ms"].GetNumberValue()))
	return ports.Frame{ReadyState: ports.HaveCurrentData, Width: width, Height: height, Data: data}, ts, nil
}

func encodeLandmarks(l domain.Landmarks) (*structpb.Struct, error) {
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func decodeLandmarks(resp *structpb.Struct) (domain.Landmarks, error) {
	var l domain.Landmarks
	raw, err := protojson.Marshal(resp)
	if err != nil {
		return l, err
	}
	if err := json.Unmarshal(raw, &l); err != nil {
		return l, fmt.Errorf("%w: landmarks: %v", domain.ErrMalformedPayload, err)
	}
	return l, nil
}
