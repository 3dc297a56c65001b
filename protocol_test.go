package termcast

import "testing"

func TestDecode_Data(t *testing.T) {
	msg, err := Decode([]byte(`{"event":"data","value":"ls -la\n"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	data, ok := msg.(DataMsg)
	if !ok {
		t.Fatalf("Decode() = %T, want DataMsg", msg)
	}
	if data.Value != "ls -la\n" {
		t.Errorf("Value = %q, want %q", data.Value, "ls -la\n")
	}
}

func TestDecode_Resize(t *testing.T) {
	msg, err := Decode([]byte(`{"event":"resize","value":{"cols":100,"rows":30}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	resize, ok := msg.(ResizeMsg)
	if !ok {
		t.Fatalf("Decode() = %T, want ResizeMsg", msg)
	}
	if resize.Cols != 100 || resize.Rows != 30 {
		t.Errorf("got %+v, want cols=100 rows=30", resize)
	}
}

func TestDecode_Heartbeat(t *testing.T) {
	msg, err := Decode([]byte(`{"event":"heartbeat"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if _, ok := msg.(HeartbeatMsg); !ok {
		t.Fatalf("Decode() = %T, want HeartbeatMsg", msg)
	}
}

func TestDecode_MalformedJSON(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err != ErrMalformed {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestDecode_UnknownEvent(t *testing.T) {
	if _, err := Decode([]byte(`{"event":"unknown"}`)); err != ErrMalformed {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestDecode_MissingEvent(t *testing.T) {
	if _, err := Decode([]byte(`{"value":"x"}`)); err != ErrMalformed {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestHeartbeatPong(t *testing.T) {
	got := string(HeartbeatPong())
	want := `{"event":"heartbeat-pong"}`
	if got != want {
		t.Errorf("HeartbeatPong() = %q, want %q", got, want)
	}
}
