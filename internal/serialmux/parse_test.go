package serialmux

import (
	"testing"
)

func TestClassifyPayload(t *testing.T) {
	cases := []struct {
		payload string
		want    string
	}{
		{`{"classifier":"object_outbound","end_time":"1750719826.467"}`, EventTypeRadarObject},
		{`{"magnitude":"2.9","speed":"0.9"}`, EventTypeRawData},
		{`12.5,31,4.2`, EventTypeRawData},
		{`{"Product":"OPS243"}`, EventTypeConfig},
		{`hello radar`, EventTypeUnknown},
		{`1,2`, EventTypeUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyPayload(tc.payload); got != tc.want {
			t.Errorf("ClassifyPayload(%q) = %q, want %q", tc.payload, got, tc.want)
		}
	}
}

func TestParseEventReadings(t *testing.T) {
	ev, err := ParseEvent(`{"uptime":100.5,"magnitude":50,"speed":10.25}`)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	want := Reading{Uptime: 100.5, Magnitude: 50, Speed: 10.25}
	if ev.Type != EventTypeRawData || ev.Reading != want {
		t.Errorf("ParseEvent JSON = %+v, want reading %+v", ev, want)
	}

	ev, err = ParseEvent(" 7.0, 22 ,3.5\r")
	if err != nil {
		t.Fatalf("ParseEvent CSV: %v", err)
	}
	if ev.Reading != (Reading{Uptime: 7, Magnitude: 22, Speed: 3.5}) {
		t.Errorf("ParseEvent CSV = %+v", ev.Reading)
	}
}

func TestParseEventFields(t *testing.T) {
	ev, err := ParseEvent(`{"classifier":"object_inbound","end_time":"1750719826.467","max_speed_mps":"13.2"}`)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Type != EventTypeRadarObject || ev.Fields["max_speed_mps"] != "13.2" {
		t.Errorf("ParseEvent object = %+v", ev)
	}

	ev, err = ParseEvent(`{"Units":"mps"}`)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Type != EventTypeConfig || ev.Fields["Units"] != "mps" {
		t.Errorf("ParseEvent config = %+v", ev)
	}
}

func TestParseEventErrors(t *testing.T) {
	for _, payload := range []string{
		`{"speed": "fast"`,
		`{"end_time": `,
		`not a reading`,
		`{"speed":"fast"}`,
	} {
		if _, err := ParseEvent(payload); err == nil {
			t.Errorf("ParseEvent(%q) expected error", payload)
		}
	}
}
