package preset

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nerrad567/regsync/internal/archive"
	"github.com/nerrad567/regsync/internal/register"
)

func TestDocumentFirmwareShape(t *testing.T) {
	p := &Preset{Name: "x", Scope: ScopeDSP, Entries: []Entry{
		{Bank: register.BankDSP, Address: 0x44, Value: 0x0C},
		{Bank: register.BankDSP, Address: 0x10, Value: 0x01},
	}}

	b, err := json.Marshal(p.Document())
	if err != nil {
		t.Fatal(err)
	}
	want := `{"dsp":[{"addr":16,"val":1},{"addr":68,"val":12}],"sensor":[]}`
	if string(b) != want {
		t.Errorf("document = %s, want %s", b, want)
	}
}

func TestDocumentCBORRoundTrip(t *testing.T) {
	p := &Preset{Name: "x", Scope: ScopeBoth, Entries: []Entry{
		{Bank: register.BankDSP, Address: 0x00, Value: 0x01},
		{Bank: register.BankSensor, Address: 0xFF, Value: 0x01},
	}}

	data, err := archive.Marshal(p.Document())
	if err != nil {
		t.Fatal(err)
	}
	var doc Document
	if err := archive.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	back, err := doc.Preset("copy")
	if err != nil {
		t.Fatalf("Preset() error = %v", err)
	}
	if back.Scope != ScopeBoth || len(back.Entries) != 2 || back.Entries[1].Address != 0xFF {
		t.Errorf("round trip = %+v", back)
	}
}

func TestDocumentValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want error
	}{
		{"empty", Document{}, register.ErrInvalidValue},
		{"address too large", Document{DSP: []DocumentEntry{{Addr: 256, Val: 0}}}, register.ErrInvalidAddress},
		{"value negative", Document{Sensor: []DocumentEntry{{Addr: 1, Val: -1}}}, register.ErrInvalidValue},
		{"duplicate", Document{DSP: []DocumentEntry{{Addr: 1, Val: 1}, {Addr: 1, Val: 2}}}, register.ErrInvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.doc.Preset("x"); !errors.Is(err, tt.want) {
				t.Errorf("Preset() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestImportDoesNotTouchDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := &Document{Sensor: []DocumentEntry{{Addr: 0x11, Val: 0x01}, {Addr: 0x12, Val: 0x02}}}
	if _, err := f.manager.Import(ctx, "imported", doc); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if reads, writes, _ := f.primary.Counters(); reads+writes != 0 {
		t.Errorf("Import() issued %d device calls", reads+writes)
	}

	p, err := f.manager.Load(ctx, "imported")
	if err != nil {
		t.Fatal(err)
	}
	if p.Scope != ScopeSensor || len(p.Entries) != 2 {
		t.Errorf("loaded = %+v", p)
	}
}
