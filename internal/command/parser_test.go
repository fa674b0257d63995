package command

import (
	"context"
	"errors"
	"testing"

	"github.com/grayhome/domo-bridge/internal/topic"
)

type fakeResolver struct {
	conn topic.ActuatorConnection
	mac  string
	err  error
}

func (f *fakeResolver) ResolveConnection(ctx context.Context, sourceTopicUUID string) (topic.ActuatorConnection, error) {
	if f.err != nil {
		return topic.ActuatorConnection{}, f.err
	}
	return f.conn, nil
}

func (f *fakeResolver) LookupActuatorMAC(ctx context.Context, targetName topic.Name, targetUUID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.mac, nil
}

func TestParseTurn(t *testing.T) {
	p := New(&fakeResolver{
		conn: topic.ActuatorConnection{TargetTopicName: topic.NameShelly1PM, TargetChannelNum: 2},
		mac:  "AA:BB:CC:DD:EE:FF",
	})
	action, err := p.ParseTurn(context.Background(), "uuid-1", true)
	if err != nil {
		t.Fatalf("ParseTurn: %v", err)
	}
	if action.MAC != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("mac = %q", action.MAC)
	}
	obj, _ := action.Payload.Object()
	setOutput, ok := obj["set_output"]
	if !ok {
		t.Fatal("expected set_output field")
	}
	so, _ := setOutput.Object()
	n, _ := so["output_number"].Float64()
	if n != 2 {
		t.Fatalf("output_number = %v, want 2", n)
	}
}

func TestParseDimRoutesByTargetKind(t *testing.T) {
	p := New(&fakeResolver{
		conn: topic.ActuatorConnection{TargetTopicName: topic.NameShellyRGBW, TargetChannelNum: 3},
		mac:  "AA:BB:CC:DD:EE:FF",
	})
	action, err := p.ParseDim(context.Background(), "uuid-1", 50)
	if err != nil {
		t.Fatalf("ParseDim: %v", err)
	}
	obj, _ := action.Payload.Object()
	if _, ok := obj["set_led_dimmer"]; !ok {
		t.Fatal("expected set_led_dimmer for rgbw target")
	}
}

func TestParseShutterRejectsOutOfRange(t *testing.T) {
	p := New(&fakeResolver{})
	_, err := p.ParseShutter(context.Background(), "uuid-1", ShutterCommand(9))
	if !errors.Is(err, ErrBadCommand) {
		t.Fatalf("got %v, want ErrBadCommand", err)
	}
}

func TestResolveFailureIsBadCommand(t *testing.T) {
	p := New(&fakeResolver{err: errors.New("no such connection")})
	_, err := p.ParseTurn(context.Background(), "missing", true)
	if !errors.Is(err, ErrBadCommand) {
		t.Fatalf("got %v, want ErrBadCommand", err)
	}
}
