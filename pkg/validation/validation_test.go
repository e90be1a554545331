package validation

import (
	"strings"
	"testing"
)

func TestValidateParticipantID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "alice", false},
		{"with dash", "user-42", false},
		{"empty", "", true},
		{"underscore reserved", "user_a", true},
		{"space", "user a", true},
		{"too long", strings.Repeat("a", 65), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParticipantID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateParticipantID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRoomID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"pair", "userA_userB", false},
		{"single", "lobby", false},
		{"empty", "", true},
		{"leading separator", "_userB", true},
		{"trailing separator", "userA_", true},
		{"double separator", "userA__userB", true},
		{"bad chars", "userA/userB", true},
		{"too long", strings.Repeat("a", 130), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRoomID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTopic(t *testing.T) {
	for _, ok := range []string{"gestures", "ui.nudge", "a1"} {
		if err := ValidateTopic(ok); err != nil {
			t.Errorf("ValidateTopic(%q) unexpected error %v", ok, err)
		}
	}
	for _, bad := range []string{"", "Gestures", "1abc", "with space"} {
		if err := ValidateTopic(bad); err == nil {
			t.Errorf("ValidateTopic(%q) expected error", bad)
		}
	}
}

func TestValidateSignalURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"ws://localhost:8081/ws", false},
		{"wss://signal.example.com/ws", false},
		{"http://localhost:8081/ws", true},
		{"ws://", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidateSignalURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSignalURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}
