package cmd

import "testing"

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"127.0.0.1:8000", false},
		{":8000", false},
		{"localhost:3000", false},
		{"0.0.0.0:80", false},
		{"[::1]:8000", false},
		{"127.0.0.1:0", false}, // auto-assign
		{"127.0.0.1", true},    // missing port
		{"127.0.0.1:", true},   // empty port
		{"127.0.0.1:abc", true},
		{"127.0.0.1:70000", true},
		{"127.0.0.1:-1", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}
