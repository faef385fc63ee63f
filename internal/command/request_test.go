package command

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Command
		wantErr bool
	}{
		{name: "text form", input: "123:reboot\n", want: New("reboot", "123")},
		{name: "text broadcast", input: "ping", want: Broadcast("ping")},
		{name: "json command", input: `{"command":"123,456:reboot"}`, want: New("reboot", "123", "456")},
		{name: "json targets", input: `{"targets":["456","123"],"payload":"ping"}`, want: New("ping", "123", "456")},
		{name: "json broadcast", input: `{"payload":"ping"}`, want: Broadcast("ping")},
		{name: "json all target", input: `{"targets":["ALL"],"payload":"ping"}`, want: Broadcast("ping")},
		{name: "command wins", input: `{"command":"1:a","targets":["2"],"payload":"b"}`, want: New("a", "1")},
		{name: "empty", input: "  ", wantErr: true},
		{name: "empty payload", input: "123:", wantErr: true},
		{name: "json without payload", input: `{"targets":["123"]}`, wantErr: true},
		{name: "broken json", input: `{"command":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Fatalf("Decode(%q) error = %v, want ErrInvalidRequest", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}
