package discovery

import "testing"

func TestDevice_String(t *testing.T) {
	tests := []struct {
		name   string
		device *Device
		want   string
	}{
		{
			name:   "with id",
			device: &Device{ID: "7", Hostname: "pigeon-7.local.", IP: "192.168.1.40", Port: 80},
			want:   "Pigeon 7 (pigeon-7.local.) at 192.168.1.40:80",
		},
		{
			name:   "without id",
			device: &Device{Hostname: "pigeon.local.", IP: "192.168.1.41", Port: 80},
			want:   "Pigeon (pigeon.local.) at 192.168.1.41:80",
		},
		{
			name:   "soft-AP",
			device: SoftAPDevice(),
			want:   "Pigeon hotspot pigeon_esp at 192.168.4.1:80",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.String(); got != tt.want {
				t.Errorf("Device.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDevice_BaseURL(t *testing.T) {
	tests := []struct {
		name     string
		device   *Device
		expected string
	}{
		{"standard HTTP port", &Device{IP: "192.168.4.1", Port: 80}, "http://192.168.4.1:80"},
		{"custom port", &Device{IP: "10.0.0.5", Port: 8080}, "http://10.0.0.5:8080"},
		{"IPv6", &Device{IP: "fe80::1", Port: 80}, "http://[fe80::1]:80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.BaseURL(); got != tt.expected {
				t.Errorf("Device.BaseURL() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDevice_GetMetadata(t *testing.T) {
	device := &Device{Metadata: map[string]string{"path": "/"}}

	if got := device.GetMetadata("path"); got != "/" {
		t.Errorf("GetMetadata(path) = %q, want /", got)
	}
	if got := device.GetMetadata("missing"); got != "" {
		t.Errorf("GetMetadata(missing) = %q, want empty", got)
	}
	if got := (&Device{}).GetMetadata("anything"); got != "" {
		t.Errorf("GetMetadata() with nil map = %q, want empty", got)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input    string
		port     int
		wantIP   string
		wantPort int
		softAP   bool
		wantErr  bool
	}{
		{input: "192.168.4.1", wantIP: "192.168.4.1", wantPort: 80, softAP: true},
		{input: "10.0.0.5:8080", wantIP: "10.0.0.5", wantPort: 8080},
		{input: "http://pigeon-7.local", wantIP: "pigeon-7.local", wantPort: 80},
		{input: "pigeon-3.local", port: 8080, wantIP: "pigeon-3.local", wantPort: 8080},
		{input: "  ", wantErr: true},
		{input: "10.0.0.5:99999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAddress(tt.input, tt.port)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.IP != tt.wantIP || got.Port != tt.wantPort || got.SoftAP != tt.softAP {
				t.Errorf("ParseAddress(%q) = %+v", tt.input, got)
			}
		})
	}
}

