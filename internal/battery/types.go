package battery

import (
	"math"
	"strconv"
	"strings"
)

// Defaults substituted for attributes that could not be read.
const (
	UnknownCapacity = "Unknown"
	NotAvailable    = "N/A"
)

// Status is the kernel's POWER_SUPPLY_STATUS vocabulary.
type Status int

const (
	StatusUnknown Status = iota
	StatusCharging
	StatusDischarging
	StatusFull
	StatusNotCharging
)

// ParseStatus maps a raw sysfs status string onto Status.
func ParseStatus(raw string) Status {
	switch raw {
	case "Charging":
		return StatusCharging
	case "Discharging":
		return StatusDischarging
	case "Full":
		return StatusFull
	case "Not charging":
		return StatusNotCharging
	default:
		return StatusUnknown
	}
}

func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case StatusCharging:
		return []byte("charging"), nil
	case StatusDischarging:
		return []byte("discharging"), nil
	case StatusFull:
		return []byte("full"), nil
	case StatusNotCharging:
		return []byte("not_charging"), nil
	default:
		return []byte("unknown"), nil
	}
}

// ChargeType is derived from the charge_type attribute and doubles as the
// "is a charger plugged in" signal. A missing attribute reads as
// ChargeTypeNotConnected; an unrecognised value stays ChargeTypeUnknown.
type ChargeType int

const (
	ChargeTypeUnknown ChargeType = iota
	ChargeTypeNotConnected
	ChargeTypeAC
	ChargeTypeUSB
	ChargeTypeWireless
	ChargeTypeFast
)

func ParseChargeType(raw string) ChargeType {
	switch raw {
	case "AC":
		return ChargeTypeAC
	case "USB":
		return ChargeTypeUSB
	case "Wireless":
		return ChargeTypeWireless
	case "Fast":
		return ChargeTypeFast
	case NotAvailable:
		return ChargeTypeNotConnected
	default:
		return ChargeTypeUnknown
	}
}

func (c ChargeType) MarshalText() ([]byte, error) {
	switch c {
	case ChargeTypeNotConnected:
		return []byte("not_connected"), nil
	case ChargeTypeAC:
		return []byte("ac"), nil
	case ChargeTypeUSB:
		return []byte("usb"), nil
	case ChargeTypeWireless:
		return []byte("wireless"), nil
	case ChargeTypeFast:
		return []byte("fast"), nil
	default:
		return []byte("unknown"), nil
	}
}

// Health is the kernel's POWER_SUPPLY_HEALTH vocabulary, restricted to the
// values the report knows how to describe.
type Health int

const (
	HealthUnknown Health = iota
	HealthGood
	HealthOverheat
	HealthDead
	HealthUnspecified
)

func ParseHealth(raw string) Health {
	switch raw {
	case "Good":
		return HealthGood
	case "Overheat":
		return HealthOverheat
	case "Dead":
		return HealthDead
	case "Unspecified":
		return HealthUnspecified
	default:
		return HealthUnknown
	}
}

func (h Health) MarshalText() ([]byte, error) {
	switch h {
	case HealthGood:
		return []byte("good"), nil
	case HealthOverheat:
		return []byte("overheat"), nil
	case HealthDead:
		return []byte("dead"), nil
	case HealthUnspecified:
		return []byte("unspecified"), nil
	default:
		return []byte("unknown"), nil
	}
}

// Temperature holds the temp attribute. Numeric values are deci-Celsius and
// are converted; anything else is kept verbatim in Raw.
type Temperature struct {
	Celsius float64 `json:"celsius"`
	Raw     string  `json:"raw"`
	Numeric bool    `json:"numeric"`
}

func ParseTemperature(raw string) Temperature {
	v, ok := parseNumber(raw)
	if !ok {
		return Temperature{Raw: raw}
	}
	return Temperature{Celsius: v / 10, Raw: raw, Numeric: true}
}

// Record is one battery snapshot. It is built fresh for every report.
type Record struct {
	Timestamp   int64       `json:"timestamp"`
	Capacity    string      `json:"capacity"`
	Status      Status      `json:"status"`
	StatusRaw   string      `json:"status_raw"`
	Temperature Temperature `json:"temperature"`
	ChargeType  ChargeType  `json:"charge_type"`
	Health      Health      `json:"health"`
	Current     string      `json:"current_ua"`
	// Missing lists the attributes that fell back to their default.
	Missing []string `json:"missing,omitempty"`
}

// CapacityPct returns the charge percentage when the capacity attribute is numeric.
func (r Record) CapacityPct() (int, bool) {
	v, ok := parseNumber(r.Capacity)
	if !ok {
		return 0, false
	}
	return int(v), true
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
