// Package report renders battery records as chat messages.
package report

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	"github.com/cptspacemanspiff/battery-notifier/internal/battery"
)

// Unknown is shown for any code without a display phrase.
const Unknown = "Unknown"

// Format renders rec as the multi-line HTML status report.
func Format(rec battery.Record) string {
	var b strings.Builder
	b.WriteString("🔋 Battery Status:\n")
	fmt.Fprintf(&b, "• Charge Level: %s%%\n", html.EscapeString(rec.Capacity))
	fmt.Fprintf(&b, "• Charging State: %s\n", ChargeTypePhrase(rec.ChargeType))
	fmt.Fprintf(&b, "• Status: %s\n", StatusPhrase(rec.Status))
	fmt.Fprintf(&b, "• Temperature: %s°C\n", html.EscapeString(FormatTemperature(rec.Temperature)))
	fmt.Fprintf(&b, "• Health: %s\n", HealthPhrase(rec.Health))
	fmt.Fprintf(&b, "• Current: %s µA\n", html.EscapeString(rec.Current))
	return b.String()
}

// FormatTemperature rounds numeric temperatures to one decimal and drops a
// trailing ".0"; non-numeric readings are shown as read.
func FormatTemperature(t battery.Temperature) string {
	if !t.Numeric {
		return t.Raw
	}
	rounded := math.Round(t.Celsius*10) / 10
	if rounded == 0 {
		rounded = 0 // avoid "-0"
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

func ChargeTypePhrase(c battery.ChargeType) string {
	switch c {
	case battery.ChargeTypeAC:
		return "Connected to charger"
	case battery.ChargeTypeUSB:
		return "Connected via USB"
	case battery.ChargeTypeWireless:
		return "Wireless charging"
	case battery.ChargeTypeFast:
		return "Fast charging"
	case battery.ChargeTypeNotConnected:
		return "Not connected"
	case battery.ChargeTypeUnknown:
		return Unknown
	}
	return Unknown
}

func StatusPhrase(s battery.Status) string {
	switch s {
	case battery.StatusCharging:
		return "Charging"
	case battery.StatusDischarging:
		return "Discharging"
	case battery.StatusFull:
		return "Full"
	case battery.StatusNotCharging:
		return "Not charging"
	case battery.StatusUnknown:
		return Unknown
	}
	return Unknown
}

func HealthPhrase(h battery.Health) string {
	switch h {
	case battery.HealthGood:
		return "Good condition"
	case battery.HealthOverheat:
		return "Overheating"
	case battery.HealthDead:
		return "Battery dead"
	case battery.HealthUnspecified:
		return "Unspecified"
	case battery.HealthUnknown:
		return Unknown
	}
	return Unknown
}

// IsCritical reports whether rec has a numeric charge at or below threshold.
func IsCritical(rec battery.Record, threshold int) bool {
	pct, ok := rec.CapacityPct()
	return ok && pct <= threshold
}

// CriticalAlert is the separate warning sent alongside a critical report.
func CriticalAlert(rec battery.Record) string {
	return "⚠️ <b>Critical Battery Warning</b> ⚠️\n" +
		fmt.Sprintf("Battery level is critically low at %s%%.\n", html.EscapeString(rec.Capacity)) +
		"Please connect the charger immediately!"
}
