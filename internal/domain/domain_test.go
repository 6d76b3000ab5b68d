package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPayloadScenarios(t *testing.T) {
	tests := []struct {
		name  string
		input PlanInput
		want  PlanPayload
	}{
		{
			name:  "car with values",
			input: PlanInput{Transport: TransportCar, Electricity: "300", Diet: DietMeat, Plastic: "10"},
			want:  PlanPayload{Travel: 200, Electricity: 300, Diet: "meat", Plastic: 10},
		},
		{
			name:  "walk with empty numbers",
			input: PlanInput{Transport: TransportWalk, Electricity: "", Diet: DietPlant, Plastic: ""},
			want:  PlanPayload{Travel: 20, Electricity: 0, Diet: "plant", Plastic: 0},
		},
		{
			name:  "bus",
			input: PlanInput{Transport: TransportBus, Electricity: "12.7", Diet: DietMixed, Plastic: "abc"},
			want:  PlanPayload{Travel: 100, Electricity: 12, Diet: "mixed", Plastic: 0},
		},
		{
			name:  "bike",
			input: PlanInput{Transport: TransportBike, Electricity: " 45kWh", Diet: DietMixed, Plastic: "-3"},
			want:  PlanPayload{Travel: 50, Electricity: 45, Diet: "mixed", Plastic: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.input.Payload()); diff != "" {
				t.Errorf("Payload() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCoerceCount(t *testing.T) {
	cases := map[string]int{
		"":          0,
		"0":         0,
		"7":         7,
		"+8":        8,
		"  19 ":     19,
		"\u00a0300": 300,
		"\v\f42":    42,
		"\ufeff5":   5,
		"\u008512":  0,
		"1e5":       1,
		"-0":        0,
		"-12":       0,
		"x1":        0,
		"99999999999999999999999": 0,
	}
	for in, want := range cases {
		if got := CoerceCount(in); got != want {
			t.Errorf("CoerceCount(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestPlanInputSet(t *testing.T) {
	in := DefaultPlanInput()
	if in.Transport != TransportCar || in.Diet != DietMeat {
		t.Fatalf("unexpected defaults: %+v", in)
	}

	if err := in.Set(FieldElectricity, "not a number"); err != nil {
		t.Fatalf("numeric fields must not be validated on update: %v", err)
	}
	if in.Electricity != "not a number" {
		t.Errorf("Electricity = %q", in.Electricity)
	}
	if err := in.Set(FieldTransport, "walk"); err != nil {
		t.Fatalf("Set transport: %v", err)
	}
	if err := in.Set(FieldTransport, "rocket"); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
	if in.Transport != TransportWalk {
		t.Errorf("invalid option must leave transport unchanged, got %q", in.Transport)
	}
	if err := in.Set("colour", "green"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestPlanResultJSONShape(t *testing.T) {
	ok, err := json.Marshal(PlanResult{Footprint: 9.68, AITips: "walk more"})
	if err != nil {
		t.Fatal(err)
	}
	if string(ok) != `{"footprint":9.68,"recommendations":[],"ai_tips":"walk more"}` {
		t.Errorf("success shape = %s", ok)
	}

	failed, err := json.Marshal(PlanResult{Footprint: 1, Error: "Error fetching plan"})
	if err != nil {
		t.Fatal(err)
	}
	if string(failed) != `{"error":"Error fetching plan"}` {
		t.Errorf("error shape = %s", failed)
	}

	r := &PlanResult{Footprint: 9.68}
	if r.FootprintText() != "9.7" {
		t.Errorf("FootprintText = %q", r.FootprintText())
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	tr := Transcript{
		{Role: RoleUser, Text: "Hi"},
		{Role: RoleBot, Text: "Hello!\nHow can I help?"},
	}
	data, err := tr.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeTranscript(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(tr, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTranscriptEncodeDropsPending(t *testing.T) {
	tr := Transcript{{Role: RoleUser, Text: "Hi"}, {Role: RolePending, Text: PendingText}}
	data, err := tr.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `[{"role":"user","text":"Hi"}]` {
		t.Errorf("Encode = %s", data)
	}

	empty, err := Transcript(nil).Encode()
	if err != nil {
		t.Fatal(err)
	}
	if string(empty) != `[]` {
		t.Errorf("empty Encode = %s", empty)
	}
}

func TestDecodeTranscriptLegacyShape(t *testing.T) {
	got, err := DecodeTranscript([]byte(`[{"type":"user","text":"Hi"},{"type":"typing","text":"EarthMate is typing..."},{"type":"bot","text":"Hey"}]`))
	if err != nil {
		t.Fatal(err)
	}
	want := Transcript{{Role: RoleUser, Text: "Hi"}, {Role: RoleBot, Text: "Hey"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("legacy decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTranscriptInvalid(t *testing.T) {
	if _, err := DecodeTranscript([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	got, err := DecodeTranscript([]byte(`[]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty transcript, got %v", got)
	}
}

func TestParseView(t *testing.T) {
	for _, s := range []string{"plan", "chat"} {
		v, err := ParseView(s)
		if err != nil || string(v) != s {
			t.Errorf("ParseView(%q) = %q, %v", s, v, err)
		}
	}
	if _, err := ParseView("settings"); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("ParseView(settings) error = %v, want ErrInvalidOption", err)
	}
	if ViewPlan.Toggle() != ViewChat || ViewChat.Toggle() != ViewPlan {
		t.Error("Toggle should switch between plan and chat")
	}
}

func TestDecodeTranscriptKeepsUnknownEntries(t *testing.T) {
	stored := `[{"role":"user","text":"kept"},"stray",{"role":"bot","text":5},{"note":true}]`
	got, err := DecodeTranscript([]byte(stored))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4: %+v", len(got), got)
	}
	if got[0].Role != RoleUser || got[0].Text != "kept" || got[0].Raw != nil {
		t.Errorf("well-formed entry = %+v", got[0])
	}
	if got[1].Text != "stray" {
		t.Errorf("string entry text = %q, want stray", got[1].Text)
	}
	if got[2].Role != RoleBot || got[2].Text != "5" {
		t.Errorf("mistyped entry = %+v", got[2])
	}

	// Unknown entries are written back exactly as they were stored.
	data, err := got.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != stored {
		t.Errorf("Encode = %s, want %s", data, stored)
	}
}

func TestDecodeTranscriptRejectsNonArray(t *testing.T) {
	for _, in := range []string{`{"role":"user","text":"x"}`, `"text"`, `42`} {
		if _, err := DecodeTranscript([]byte(in)); err == nil {
			t.Errorf("DecodeTranscript(%s) should fail", in)
		}
	}
}
