package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := PortOptions{BaudRate: 19200, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalize_Parity(t *testing.T) {
	cases := map[string]string{
		"":     "N",
		"none": "N",
		" e ":  "E",
		"EVEN": "E",
		"o":    "O",
		"Odd":  "O",
	}
	for in, want := range cases {
		got, err := PortOptions{Parity: in}.Normalize()
		if err != nil {
			t.Fatalf("Normalize() with parity %q: %v", in, err)
		}
		if got.Parity != want {
			t.Errorf("parity %q normalized to %q, want %q", in, got.Parity, want)
		}
	}
}

func TestPortOptions_Normalize_Invalid(t *testing.T) {
	for _, opts := range []PortOptions{
		{DataBits: 4},
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "X"},
	} {
		if _, err := opts.Normalize(); err == nil {
			t.Errorf("Normalize(%+v) expected error", opts)
		}
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if mode.BaudRate != 9600 || mode.DataBits != 7 {
		t.Errorf("mode = %+v", mode)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("Parity = %v, want EvenParity", mode.Parity)
	}
	if mode.StopBits != serial.StopBits(2) {
		t.Errorf("StopBits = %v", mode.StopBits)
	}

	if _, err := (PortOptions{Parity: "Q"}).SerialMode(); err == nil {
		t.Error("SerialMode() expected error for bad parity")
	}
}
