package models

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v2"
)

func TestEventMarshal_FrameShapes(t *testing.T) {
	cases := []struct {
		event Event
		want  string
	}{
		{SessionEvent("abc-123"), `{"type":"session","id":"abc-123"}`},
		{OutputEvent(EventStdout, "hello\n"), `{"type":"stdout","data":"hello\n"}`},
		{OutputEvent(EventStderr, "oops"), `{"type":"stderr","data":"oops"}`},
		{ExitEvent(0), `{"type":"exit","code":0}`},
		{ExitEvent(124), `{"type":"exit","code":124}`},
	}

	for _, tc := range cases {
		got, err := json.Marshal(tc.event)
		if err != nil {
			t.Fatalf("marshal %v: %v", tc.event, err)
		}
		if string(got) != tc.want {
			t.Fatalf("expected %s got %s", tc.want, got)
		}
	}
}

func TestEventMarshal_UnknownTypeFails(t *testing.T) {
	if _, err := json.Marshal(Event{Type: "bogus"}); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestEventUnmarshal_RoundTrip(t *testing.T) {
	for _, ev := range []Event{
		SessionEvent("s"),
		OutputEvent(EventStdout, "line\n"),
		ExitEvent(7),
	} {
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatal(err)
		}
		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if got != ev {
			t.Fatalf("expected %+v got %+v", ev, got)
		}
	}
}

func TestDuration_JSON(t *testing.T) {
	d := Duration(90 * time.Second)
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"1m30s"` {
		t.Fatalf("expected \"1m30s\" got %s", data)
	}

	var back Duration
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != d {
		t.Fatalf("expected %v got %v", d, back)
	}
}

func TestDuration_YAML(t *testing.T) {
	var out struct {
		Timeout Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("timeout: 2m\n"), &out); err != nil {
		t.Fatal(err)
	}
	if time.Duration(out.Timeout) != 2*time.Minute {
		t.Fatalf("expected 2m got %v", time.Duration(out.Timeout))
	}
}
