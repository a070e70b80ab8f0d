package validation

import (
	"strings"
	"testing"
)

func TestValidateStreamKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "live_abc123", false},
		{"opaque punctuation", "a.b/c+d=", false},
		{"max length", strings.Repeat("k", MaxStreamKeyLength), false},
		{"empty", "", true},
		{"too long", strings.Repeat("k", MaxStreamKeyLength+1), true},
		{"space", "live key", true},
		{"tab", "live\tkey", true},
		{"newline", "live\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStreamKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStreamKey() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"uuid", "0b9c7e4a-3a57-4c1e-9a6f-2f7c5f3b1d10", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid chars", "sess/1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSessionID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCodecName(t *testing.T) {
	tests := []struct {
		name    string
		codec   string
		wantErr bool
	}{
		{"empty allowed", "", false},
		{"h264", "h264", false},
		{"upper", "VP9", false},
		{"slash", "video/h264", true},
		{"too long", strings.Repeat("x", 33), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCodecName(tt.codec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCodecName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid http", "http://localhost:8080", false},
		{"valid https", "https://media.example.com", false},
		{"empty", "", true},
		{"ws rejected", "ws://example.com", true},
		{"no host", "http://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateUDPAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"host port", "127.0.0.1:5004", false},
		{"any host", ":5004", false},
		{"empty", "", true},
		{"no port", "127.0.0.1", true},
		{"trailing colon", "127.0.0.1:", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUDPAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUDPAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
