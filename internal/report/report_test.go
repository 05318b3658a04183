package report

import (
	"strings"
	"testing"

	"github.com/cptspacemanspiff/battery-notifier/internal/battery"
)

func sampleRecord() battery.Record {
	return battery.Record{
		Capacity:    "81",
		Status:      battery.StatusCharging,
		Temperature: battery.ParseTemperature("315"),
		ChargeType:  battery.ChargeTypeAC,
		Health:      battery.HealthGood,
		Current:     "1200",
	}
}

func TestFormat_FieldOrder(t *testing.T) {
	got := Format(sampleRecord())
	want := "🔋 Battery Status:\n" +
		"• Charge Level: 81%\n" +
		"• Charging State: Connected to charger\n" +
		"• Status: Charging\n" +
		"• Temperature: 31.5°C\n" +
		"• Health: Good condition\n" +
		"• Current: 1200 µA\n"
	if got != want {
		t.Fatalf("Format() =\n%s\nwant\n%s", got, want)
	}
}

func TestFormat_ChargeTypePhrases(t *testing.T) {
	tests := map[battery.ChargeType]string{
		battery.ChargeTypeAC:           "Connected to charger",
		battery.ChargeTypeUSB:          "Connected via USB",
		battery.ChargeTypeWireless:     "Wireless charging",
		battery.ChargeTypeFast:         "Fast charging",
		battery.ChargeTypeNotConnected: "Not connected",
		battery.ChargeTypeUnknown:      Unknown,
	}
	for code, phrase := range tests {
		rec := sampleRecord()
		rec.ChargeType = code
		if got := Format(rec); !strings.Contains(got, "• Charging State: "+phrase+"\n") {
			t.Fatalf("Format() with charge type %v = %q, want phrase %q", code, got, phrase)
		}
	}
}

func TestFormat_StatusPhrases(t *testing.T) {
	tests := map[string]string{
		"Charging":     "Charging",
		"Discharging":  "Discharging",
		"Full":         "Full",
		"Not charging": "Not charging",
		"Bogus":        Unknown,
		"N/A":          Unknown,
	}
	for raw, phrase := range tests {
		rec := sampleRecord()
		rec.Status = battery.ParseStatus(raw)
		if got := Format(rec); !strings.Contains(got, "• Status: "+phrase+"\n") {
			t.Fatalf("Format() with status %q = %q, want phrase %q", raw, got, phrase)
		}
	}
}

func TestFormat_HealthPhrases(t *testing.T) {
	tests := map[string]string{
		"Good":        "Good condition",
		"Overheat":    "Overheating",
		"Dead":        "Battery dead",
		"Unspecified": "Unspecified",
		"Cold":        Unknown,
	}
	for raw, phrase := range tests {
		rec := sampleRecord()
		rec.Health = battery.ParseHealth(raw)
		if got := Format(rec); !strings.Contains(got, "• Health: "+phrase+"\n") {
			t.Fatalf("Format() with health %q = %q, want phrase %q", raw, got, phrase)
		}
	}
}

func TestFormatTemperature(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"0", "0"},
		{"300", "30"},
		{"315", "31.5"},
		{"-45", "-4.5"},
		{"-4", "-0.4"},
		{"256.7", "25.7"},
		{"hot", "hot"},
	}
	for _, tt := range tests {
		if got := FormatTemperature(battery.ParseTemperature(tt.raw)); got != tt.want {
			t.Fatalf("FormatTemperature(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestFormat_EscapesRawValues(t *testing.T) {
	rec := sampleRecord()
	rec.Current = "<b>"
	if got := Format(rec); !strings.Contains(got, "• Current: &lt;b&gt; µA") {
		t.Fatalf("Format() = %q, want escaped current", got)
	}
}

func TestIsCritical(t *testing.T) {
	tests := []struct {
		capacity string
		want     bool
	}{
		{"15", true},
		{"16", false},
		{"0", true},
		{"Unknown", false},
	}
	for _, tt := range tests {
		rec := battery.Record{Capacity: tt.capacity}
		if got := IsCritical(rec, 15); got != tt.want {
			t.Fatalf("IsCritical(%q, 15) = %v, want %v", tt.capacity, got, tt.want)
		}
	}
}

func TestCriticalAlert(t *testing.T) {
	got := CriticalAlert(battery.Record{Capacity: "9"})
	if !strings.Contains(got, "<b>Critical Battery Warning</b>") || !strings.Contains(got, "critically low at 9%") {
		t.Fatalf("CriticalAlert() = %q", got)
	}
}
