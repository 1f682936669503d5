package relay

import (
	"encoding/json"
)

// control plane frames exchanged with the relay service. One JSON object per
// websocket message. An empty message is a ping.

const (
	FrameTypeAuth        = "auth"
	FrameTypeSubscribe   = "subscribe"
	FrameTypeUnsubscribe = "unsubscribe"
	FrameTypeStatus      = "status"
	FrameTypeMembership  = "membership"
)

type Frame struct {
	Type string `json:"type"`

	// auth
	Jwt string `json:"jwt,omitempty"`

	// subscribe/unsubscribe/status target. A subscribe with no `path`
	// subscribes the folder itself, which yields membership frames.
	Folder string `json:"folder,omitempty"`
	Path   string `json:"path,omitempty"`
	Create bool   `json:"create,omitempty"`

	// status
	Status string `json:"status,omitempty"`

	// membership
	Paths []string `json:"paths,omitempty"`
}

func EncodeFrame(frame *Frame) ([]byte, error) {
	return json.Marshal(frame)
}

func DecodeFrame(message []byte) (*Frame, error) {
	frame := &Frame{}
	if err := json.Unmarshal(message, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
