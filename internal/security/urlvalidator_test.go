package security

import (
	"errors"
	"net"
	"testing"
)

const backend = "http://127.0.0.1:7860"

func TestValidateImageURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		base    string
		wantErr error
	}{
		{"backend file on loopback", "http://127.0.0.1:7860/gradio_api/file=gen_1.png", backend, nil},
		{"backend host case-insensitive", "HTTP://127.0.0.1:7860/gradio_api/file=a.png", backend, nil},
		{"public https literal", "https://8.8.8.8/image.png", backend, nil},
		{"other port on loopback", "http://127.0.0.1:9000/x.png", backend, ErrInvalidScheme},
		{"https loopback off backend", "https://127.0.0.1/x.png", backend, ErrPrivateIP},
		{"http public host", "http://8.8.8.8/x.png", backend, ErrInvalidScheme},
		{"private 10.x", "https://10.0.0.1/x.png", backend, ErrPrivateIP},
		{"private 192.168.x", "https://192.168.1.4/x.png", backend, ErrPrivateIP},
		{"cgnat", "https://100.64.0.1/x.png", backend, ErrPrivateIP},
		{"ipv6 loopback", "https://[::1]/x.png", backend, ErrPrivateIP},
		{"ipv6 unique local", "https://[fd00::1]/x.png", backend, ErrPrivateIP},
		{"no backend configured", "http://127.0.0.1:7860/file=a.png", "", ErrInvalidScheme},
		{"relative url", "/gradio_api/file=a.png", backend, ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImageURL(tt.url, tt.base)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateImageURL() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateImageURL() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"http://127.0.0.1:7860", false},
		{"https://moodboard.example.com/app", false},
		{"ftp://host", true},
		{"127.0.0.1:7860", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			err := ValidateBaseURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBaseURL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.20.0.1", true},
		{"169.254.1.1", true},
		{"0.0.0.0", true},
		{"192.0.2.10", true},
		{"198.51.100.7", true},
		{"203.0.113.9", true},
		{"239.1.1.1", true},
		{"250.0.0.1", true},
		{"::ffff:10.0.0.1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"2606:4700::1111", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := isPrivateIP(net.ParseIP(tt.ip)); got != tt.want {
				t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}
