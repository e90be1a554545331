package services

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
)

var payloadValidator = validator.New()

// decodeStrict unmarshals exactly one JSON value with no unknown fields and
// validates it against its struct tags.
func decodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", domain.ErrMalformedPayload)
	}
	if err := payloadValidator.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return nil
}

// DecodeFeedMessage is the only way inbound data-channel bytes become a FeedMessage.
func DecodeFeedMessage(data []byte) (domain.FeedMessage, error) {
	var msg domain.FeedMessage
	if err := decodeStrict(data, &msg); err != nil {
		return domain.FeedMessage{}, err
	}
	if msg.Kind == domain.FeedComeCloser && msg.Sample != nil {
		return domain.FeedMessage{}, fmt.Errorf("%w: come-closer carries a sample", domain.ErrMalformedPayload)
	}
	return msg, nil
}

// ValidateSignal checks the envelope of an inbound signaling message.
func ValidateSignal(msg domain.SignalMessage) error {
	if err := payloadValidator.Struct(msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return nil
}

func decodeDescription(msg domain.SignalMessage) (domain.SessionDescription, error) {
	var desc domain.SessionDescription
	if err := msg.Decode(&desc); err != nil {
		return desc, err
	}
	if err := payloadValidator.Struct(desc); err != nil {
		return desc, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return desc, nil
}

func decodeCandidate(msg domain.SignalMessage) (domain.ICECandidate, error) {
	var c domain.ICECandidate
	if err := msg.Decode(&c); err != nil {
		return c, err
	}
	return c, nil
}
