package session

import "fmt"

// Tab is one section of the operator console.
type Tab string

const (
	TabDashboard   Tab = "dashboard"
	TabUsers       Tab = "users"
	TabAgents      Tab = "agents"
	TabDeposits    Tab = "deposits"
	TabReports     Tab = "reports"
	TabWithdrawals Tab = "withdrawals"
	TabSettings    Tab = "settings"
)

var tabs = []Tab{TabDashboard, TabUsers, TabAgents, TabDeposits, TabReports, TabWithdrawals, TabSettings}

// ParseTab validates a tab name.
func ParseTab(raw string) (Tab, error) {
	for _, t := range tabs {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown tab %q", ErrInvalidNavigation, raw)
}

// Navigation is the operator's selection state. It is reset on logout.
type Navigation struct {
	ActiveTab   Tab    `json:"active_tab"`
	SidebarOpen bool   `json:"sidebar_open"`
	SelectedID  string `json:"selected_id,omitempty"`
}

// DefaultNavigation is the state a fresh session starts in.
func DefaultNavigation() Navigation {
	return Navigation{ActiveTab: TabDashboard, SidebarOpen: true}
}
