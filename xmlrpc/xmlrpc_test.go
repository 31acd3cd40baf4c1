package xmlrpc

import (
	"bytes"
	"math"
	"testing"
)

func TestMethodCallRoundTrip(t *testing.T) {
	encoded := EncodeMethodCall("registerSubscriber", "/listener", "/chatter", "std_msgs/String", "http://host:1234/")
	call, err := ParseMethodCall(bytes.NewReader(encoded), 0)
	if err != nil {
		t.Fatalf("ParseMethodCall: %v", err)
	}
	if call.Name != "registerSubscriber" {
		t.Fatalf("Name = %q", call.Name)
	}
	want := []string{"/listener", "/chatter", "std_msgs/String", "http://host:1234/"}
	if len(call.Params) != len(want) {
		t.Fatalf("Params = %v, want %v", call.Params, want)
	}
	for i, w := range want {
		if call.Params[i] != w {
			t.Fatalf("Params[%d] = %v, want %v", i, call.Params[i], w)
		}
	}
}

func TestMethodResponseRoundTripTriple(t *testing.T) {
	value := Array{StatusSuccess, "Success", Array{"http://pub1:11000"}}
	encoded := EncodeMethodResponse(value)
	resp, err := ParseMethodResponse(bytes.NewReader(encoded), 0)
	if err != nil {
		t.Fatalf("ParseMethodResponse: %v", err)
	}
	if resp.IsFault {
		t.Fatal("unexpected fault")
	}
	arr, ok := resp.Value.(Array)
	if !ok || len(arr) != 3 {
		t.Fatalf("Value = %#v", resp.Value)
	}
	if arr[0] != int32(StatusSuccess) {
		t.Fatalf("code = %#v", arr[0])
	}
	if arr[1] != "Success" {
		t.Fatalf("status = %#v", arr[1])
	}
}

func TestValueRoundTripScalarsAndContainers(t *testing.T) {
	cases := []Value{
		int32(42), true, false, "hello & <world>", 3.5, Array{int32(1), int32(2)},
		Struct{"a": int32(1), "b": "two"},
	}
	for _, v := range cases {
		encoded := EncodeMethodResponse(v)
		resp, err := ParseMethodResponse(bytes.NewReader(encoded), 0)
		if err != nil {
			t.Fatalf("ParseMethodResponse(%v): %v", v, err)
		}
		assertValueEqual(t, v, resp.Value)
	}
}

func TestParserTreatsBareStringAsValue(t *testing.T) {
	doc := `<?xml version="1.0"?><methodResponse><params><param><string>Hello</string></param></params></methodResponse>`
	resp, err := ParseMethodResponse(bytes.NewReader([]byte(doc)), 0)
	if err != nil {
		t.Fatalf("ParseMethodResponse: %v", err)
	}
	if resp.Value != "Hello" {
		t.Fatalf("Value = %#v, want %q", resp.Value, "Hello")
	}
}

func TestParserDecodesFault(t *testing.T) {
	doc := EncodeFault(-1, "no such method")
	resp, err := ParseMethodResponse(bytes.NewReader(doc), 0)
	if err != nil {
		t.Fatalf("ParseMethodResponse: %v", err)
	}
	if !resp.IsFault || resp.FaultCode != -1 || resp.FaultMsg != "no such method" {
		t.Fatalf("resp = %+v", resp)
	}
}

func assertValueEqual(t *testing.T, want, got Value) {
	t.Helper()
	switch w := want.(type) {
	case float64:
		g, ok := got.(float64)
		if !ok || math.Abs(w-g) > 1e-9 {
			t.Fatalf("got %#v, want %#v", got, want)
		}
	case Array:
		g, ok := got.(Array)
		if !ok || len(g) != len(w) {
			t.Fatalf("got %#v, want %#v", got, want)
		}
		for i := range w {
			assertValueEqual(t, w[i], g[i])
		}
	case Struct:
		g, ok := got.(Struct)
		if !ok || len(g) != len(w) {
			t.Fatalf("got %#v, want %#v", got, want)
		}
		for k, v := range w {
			assertValueEqual(t, v, g[k])
		}
	default:
		if want != got {
			t.Fatalf("got %#v, want %#v", got, want)
		}
	}
}
