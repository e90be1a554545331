package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	maxParticipantIDLength = 64
	maxRoomIDLength        = 2*maxParticipantIDLength + 1
)

var (
	// ParticipantIDRegex excludes "_", the room key separator.
	ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	TopicRegex = regexp.MustCompile(`^[a-z][a-z0-9.-]*$`)
)

func ValidateParticipantID(id string) error {
	if id == "" {
		return fmt.Errorf("participant ID is required")
	}
	if len(id) > maxParticipantIDLength {
		return fmt.Errorf("participant ID is too long (max %d characters)", maxParticipantIDLength)
	}
	if !ParticipantIDRegex.MatchString(id) {
		return fmt.Errorf("invalid participant ID format (letters, digits and - only)")
	}
	return nil
}

// ValidateRoomID checks a room key such as "userA_userB".
func ValidateRoomID(id string) error {
	if id == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(id) > maxRoomIDLength {
		return fmt.Errorf("room ID is too long (max %d characters)", maxRoomIDLength)
	}
	if !RoomIDRegex.MatchString(id) {
		return fmt.Errorf("invalid room ID format")
	}
	if strings.HasPrefix(id, "_") || strings.HasSuffix(id, "_") || strings.Contains(id, "__") {
		return fmt.Errorf("room ID has an empty participant segment")
	}
	return nil
}

func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	if len(topic) > 64 || !TopicRegex.MatchString(topic) {
		return fmt.Errorf("invalid topic %q", topic)
	}
	return nil
}

// ValidateSignalURL checks a websocket endpoint of the signaling relay.
func ValidateSignalURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme %q (must be ws or wss)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
