// Package domain contains core domain types for the EarthMate client.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Transport is how the user usually travels.
type Transport string

const (
	TransportCar  Transport = "car"
	TransportBike Transport = "bike"
	TransportBus  Transport = "bus"
	TransportWalk Transport = "walk"
)

// Transports lists the selectable travel modes in display order.
var Transports = []Transport{TransportCar, TransportBike, TransportBus, TransportWalk}

// Valid reports whether t is one of the known travel modes.
func (t Transport) Valid() bool {
	switch t {
	case TransportCar, TransportBike, TransportBus, TransportWalk:
		return true
	}
	return false
}

// TravelProxy maps a travel mode to the yearly-mileage proxy the backend expects.
func (t Transport) TravelProxy() int {
	switch t {
	case TransportCar:
		return 200
	case TransportBus:
		return 100
	case TransportBike:
		return 50
	default:
		return 20
	}
}

// Label returns the human readable option text.
func (t Transport) Label() string {
	switch t {
	case TransportCar:
		return "Mostly Car"
	case TransportBike:
		return "Bike"
	case TransportBus:
		return "Bus/Metro"
	case TransportWalk:
		return "Walking"
	}
	return string(t)
}

// Diet is the user's diet preference.
type Diet string

const (
	DietMeat  Diet = "meat"
	DietMixed Diet = "mixed"
	DietPlant Diet = "plant"
)

// Diets lists the selectable diets in display order.
var Diets = []Diet{DietMeat, DietMixed, DietPlant}

// Valid reports whether d is one of the known diets.
func (d Diet) Valid() bool {
	switch d {
	case DietMeat, DietMixed, DietPlant:
		return true
	}
	return false
}

// Label returns the human readable option text.
func (d Diet) Label() string {
	switch d {
	case DietMeat:
		return "Mostly Meat"
	case DietMixed:
		return "Mixed"
	case DietPlant:
		return "Plant-based"
	}
	return string(d)
}

// Plan form field names accepted by PlanInput.Set.
const (
	FieldTransport   = "transport"
	FieldElectricity = "electricity"
	FieldDiet        = "diet"
	FieldPlastic     = "plastic"
)

var (
	// ErrUnknownField is returned when setting a field the plan form does not have.
	ErrUnknownField = errors.New("unknown plan field")
	// ErrInvalidOption is returned when a select field is set to a value outside its options.
	ErrInvalidOption = errors.New("invalid option")
)

// PlanInput holds the plan form exactly as the user entered it.
// Numeric fields stay raw text until a payload is built.
type PlanInput struct {
	Transport   Transport `json:"transport"`
	Electricity string    `json:"electricity"`
	Diet        Diet      `json:"diet"`
	Plastic     string    `json:"plastic"`
}

// DefaultPlanInput returns the initial form state.
func DefaultPlanInput() PlanInput {
	return PlanInput{Transport: TransportCar, Diet: DietMeat}
}

// Set assigns the named field. Numeric fields are not validated here.
func (in *PlanInput) Set(name, value string) error {
	switch name {
	case FieldTransport:
		t := Transport(value)
		if !t.Valid() {
			return fmt.Errorf("%w: transport %q", ErrInvalidOption, value)
		}
		in.Transport = t
	case FieldDiet:
		d := Diet(value)
		if !d.Valid() {
			return fmt.Errorf("%w: diet %q", ErrInvalidOption, value)
		}
		in.Diet = d
	case FieldElectricity:
		in.Electricity = value
	case FieldPlastic:
		in.Plastic = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return nil
}

// PlanPayload is the body of the action plan request.
type PlanPayload struct {
	Travel      int    `json:"travel"`
	Electricity int    `json:"electricity"`
	Diet        string `json:"diet"`
	Plastic     int    `json:"plastic"`
}

// Payload derives the request body from the current input.
func (in PlanInput) Payload() PlanPayload {
	return PlanPayload{
		Travel:      in.Transport.TravelProxy(),
		Electricity: CoerceCount(in.Electricity),
		Diet:        string(in.Diet),
		Plastic:     CoerceCount(in.Plastic),
	}
}

// CoerceCount turns user text into a non-negative integer.
// Leading whitespace and an optional sign are accepted, then the leading
// run of digits is used ("300kWh" is 300, "12.7" is 12). Anything without
// leading digits, and any negative value, becomes 0.
func CoerceCount(s string) int {
	s = strings.TrimLeftFunc(s, isLeadingSpace)
	i := 0
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start || neg {
		return 0
	}
	n, err := strconv.Atoi(s[start:i])
	if err != nil {
		// Out of range for int.
		return 0
	}
	return n
}

// isLeadingSpace matches the whitespace a browser's parseInt skips: Unicode
// spaces and the byte order mark, but not NEL.
func isLeadingSpace(r rune) bool {
	return r == '\ufeff' || (r != '\u0085' && unicode.IsSpace(r))
}

// PlanResult is either a computed plan or an error message, never both.
type PlanResult struct {
	Footprint       float64  `json:"footprint"`
	Recommendations []string `json:"recommendations"`
	AITips          string   `json:"ai_tips"`
	Error           string   `json:"error,omitempty"`
}

// PlanError builds an error-shaped result.
func PlanError(msg string) *PlanResult {
	return &PlanResult{Error: msg}
}

// Failed reports whether r carries an error instead of a plan.
func (r *PlanResult) Failed() bool {
	return r != nil && r.Error != ""
}

// FootprintText formats the footprint with one decimal.
func (r *PlanResult) FootprintText() string {
	return strconv.FormatFloat(r.Footprint, 'f', 1, 64)
}

// MarshalJSON emits only the shape that r holds.
func (r PlanResult) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	recs := r.Recommendations
	if recs == nil {
		recs = []string{}
	}
	return json.Marshal(struct {
		Footprint       float64  `json:"footprint"`
		Recommendations []string `json:"recommendations"`
		AITips          string   `json:"ai_tips"`
	}{r.Footprint, recs, r.AITips})
}
