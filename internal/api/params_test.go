package api

import (
	"encoding/json"
	"testing"

	"github.com/nerrad567/regsync/internal/register"
)

func TestHexByteUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		set     bool
		wantErr bool
	}{
		{`63`, 63, true, false},
		{`"0x3F"`, 63, true, false},
		{`"0X3f"`, 63, true, false},
		{`" 12 "`, 12, true, false},
		{`"077"`, 63, true, false},
		{`null`, 0, false, false},
		{`"abc"`, 0, false, true},
		{`1.5`, 0, false, true},
		{`true`, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var h hexByte
			err := json.Unmarshal([]byte(tt.in), &h)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Unmarshal(%s) = %+v, want error", tt.in, h)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
			}
			if h.n != tt.want || h.set != tt.set {
				t.Errorf("Unmarshal(%s) = %+v, want n=%d set=%v", tt.in, h, tt.want, tt.set)
			}
		})
	}
}

func TestBankField(t *testing.T) {
	tests := []struct {
		in      string
		want    register.Bank
		wantErr bool
	}{
		{`0`, register.BankDSP, false},
		{`1`, register.BankSensor, false},
		{`"dsp"`, register.BankDSP, false},
		{`"Sensor"`, register.BankSensor, false},
		{`2`, 0, true},
		{`"isp"`, 0, true},
	}
	for _, tt := range tests {
		var body struct {
			Bank bankField `json:"bank"`
		}
		if err := json.Unmarshal([]byte(`{"bank":`+tt.in+`}`), &body); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
		}
		got, err := body.Bank.get()
		if (err != nil) != tt.wantErr || (!tt.wantErr && got != tt.want) {
			t.Errorf("bank %s = %v, %v", tt.in, got, err)
		}
	}

	var missing bankField
	if _, err := missing.get(); err == nil {
		t.Error("missing bank: expected error")
	}
}
