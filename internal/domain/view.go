package domain

import "fmt"

// View selects which flow is shown.
type View string

const (
	ViewPlan View = "plan"
	ViewChat View = "chat"
)

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case ViewPlan, ViewChat:
		return v, nil
	}
	return "", fmt.Errorf("%w: view %q", ErrInvalidOption, s)
}

// Toggle returns the other view.
func (v View) Toggle() View {
	if v == ViewChat {
		return ViewPlan
	}
	return ViewChat
}

// Title is the tab caption.
func (v View) Title() string {
	if v == ViewChat {
		return "Ask EarthMate"
	}
	return "My Action Plan"
}
