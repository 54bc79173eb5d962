package player

import (
	"testing"

	"github.com/shaunagostinho/globe-radio/internal/catalog"
)

func TestLogPlayerTracksCurrent(t *testing.T) {
	p := NewLogPlayer()
	if _, ok := p.Current(); ok {
		t.Fatalf("fresh player reports a station")
	}
	st := catalog.Station{Name: "Rock 101", URL: "http://example.com/rock"}
	if err := p.Play("Akron, Ohio", st); err != nil {
		t.Fatalf("play: %v", err)
	}
	if got, ok := p.Current(); !ok || got != st {
		t.Fatalf("Current=%+v,%v want %+v,true", got, ok, st)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := p.Current(); ok {
		t.Fatalf("still playing after Stop")
	}
}

func TestCommandPayload(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{
			cmd:  Command{Action: "play", City: "Akron, Ohio", Name: "Rock 101", URL: "http://example.com/rock"},
			want: `{"action":"play","city":"Akron, Ohio","name":"Rock 101","url":"http://example.com/rock"}`,
		},
		{cmd: Command{Action: "stop"}, want: `{"action":"stop"}`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.cmd)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(got) != tt.want {
			t.Fatalf("payload=%s want %s", got, tt.want)
		}
	}
}
