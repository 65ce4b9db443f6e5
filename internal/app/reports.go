package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/admin-service/internal/domain"
	"github.com/transfa/admin-service/internal/engine"
)

var ErrInvalidMonth = errors.New("month must be formatted YYYY-MM")

// DashboardStats is the headline view of the ledger.
type DashboardStats struct {
	TotalUsers             int             `json:"total_users"`
	ActiveUsers            int             `json:"active_users"`
	BlockedUsers           int             `json:"blocked_users"`
	TotalAgents            int             `json:"total_agents"`
	ActiveAgents           int             `json:"active_agents"`
	TotalUserBalance       decimal.Decimal `json:"total_user_balance"`
	TotalAgentBalance      decimal.Decimal `json:"total_agent_balance"`
	PendingDeposits        int             `json:"pending_deposits"`
	PendingDepositAmount   decimal.Decimal `json:"pending_deposit_amount"`
	PendingWithdrawals     int             `json:"pending_withdrawals"`
	PendingWithdrawAmount  decimal.Decimal `json:"pending_withdraw_amount"`
	ApprovedDepositVolume  decimal.Decimal `json:"approved_deposit_volume"`
	ApprovedWithdrawVolume decimal.Decimal `json:"approved_withdraw_volume"`
	CommissionPaid         decimal.Decimal `json:"commission_paid"`
	BonusPaid              decimal.Decimal `json:"bonus_paid"`
	SnapshotVersion        uint64          `json:"snapshot_version"`
}

// AgentMonthReport summarises one agent's activity in one calendar month.
type AgentMonthReport struct {
	AgentID        string          `json:"agent_id"`
	AgentName      string          `json:"agent_name"`
	IsActive       bool            `json:"is_active"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	DepositsFunded int             `json:"deposits_funded"`
	DepositVolume  decimal.Decimal `json:"deposit_volume"`
	Commission     decimal.Decimal `json:"commission"`
	Bonuses        decimal.Decimal `json:"bonuses"`
	Balance        decimal.Decimal `json:"balance"`
}

// MonthlyReport lists every agent's activity for a month, busiest first.
type MonthlyReport struct {
	Month  string             `json:"month"`
	Agents []AgentMonthReport `json:"agents"`
}

// BuildDashboard computes the dashboard figures from a snapshot.
func BuildDashboard(snap domain.Snapshot) DashboardStats {
	stats := DashboardStats{
		TotalUsers:      len(snap.Users),
		TotalAgents:     len(snap.Agents),
		SnapshotVersion: snap.Version,
	}
	for _, u := range snap.Users {
		switch u.Status {
		case domain.UserStatusBlocked:
			stats.BlockedUsers++
		default:
			stats.ActiveUsers++
		}
		stats.TotalUserBalance = stats.TotalUserBalance.Add(u.Balance)
	}
	for _, a := range snap.Agents {
		if a.IsActive {
			stats.ActiveAgents++
		}
		stats.TotalAgentBalance = stats.TotalAgentBalance.Add(a.Balance)
	}
	for _, tx := range snap.Transactions {
		switch {
		case tx.Type == domain.TransactionDeposit && tx.Status == domain.StatusPending:
			stats.PendingDeposits++
			stats.PendingDepositAmount = stats.PendingDepositAmount.Add(tx.Amount)
		case tx.Type == domain.TransactionWithdraw && tx.Status == domain.StatusPending:
			stats.PendingWithdrawals++
			stats.PendingWithdrawAmount = stats.PendingWithdrawAmount.Add(tx.Amount)
		case tx.Type == domain.TransactionDeposit && tx.Status == domain.StatusApproved:
			stats.ApprovedDepositVolume = stats.ApprovedDepositVolume.Add(tx.Amount)
		case tx.Type == domain.TransactionWithdraw && tx.Status == domain.StatusApproved:
			stats.ApprovedWithdrawVolume = stats.ApprovedWithdrawVolume.Add(tx.Amount)
		case tx.Type == domain.TransactionCommission && tx.Status == domain.StatusApproved:
			stats.CommissionPaid = stats.CommissionPaid.Add(tx.Amount)
		case tx.Type == domain.TransactionBonus && tx.Status == domain.StatusApproved:
			stats.BonusPaid = stats.BonusPaid.Add(tx.Amount)
		}
	}
	return stats
}

// UserHistory returns the transactions of one user, matched by id or by email, in
// snapshot order.
func UserHistory(snap domain.Snapshot, userID string) ([]domain.Transaction, error) {
	user, ok := snap.FindUserByID(userID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUserNotFound, userID)
	}
	history := make([]domain.Transaction, 0)
	for _, tx := range snap.Transactions {
		if tx.UserID == user.ID || (user.Email != "" && tx.UserEmail == user.Email) {
			history = append(history, tx)
		}
	}
	return history, nil
}

// FilterTransactions returns the transactions matching the optional type and status.
func FilterTransactions(snap domain.Snapshot, kind domain.TransactionType, status domain.TransactionStatus) []domain.Transaction {
	out := make([]domain.Transaction, 0)
	for _, tx := range snap.Transactions {
		if kind != "" && tx.Type != kind {
			continue
		}
		if status != "" && tx.Status != status {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// BuildMonthlyReport aggregates approved agent activity for month (YYYY-MM).
func BuildMonthlyReport(snap domain.Snapshot, month string) (MonthlyReport, error) {
	month = strings.TrimSpace(month)
	if _, err := time.Parse("2006-01", month); err != nil {
		return MonthlyReport{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}

	rows := make(map[string]*AgentMonthReport, len(snap.Agents))
	report := MonthlyReport{Month: month, Agents: make([]AgentMonthReport, 0, len(snap.Agents))}
	for _, a := range snap.Agents {
		rows[a.ID] = &AgentMonthReport{
			AgentID:        a.ID,
			AgentName:      a.Name,
			IsActive:       a.IsActive,
			CommissionRate: a.CommissionRate,
			Balance:        a.Balance,
		}
	}

	prefix := month + "-"
	for _, tx := range snap.Transactions {
		if tx.Status != domain.StatusApproved || !tx.HasAgent() || !strings.HasPrefix(tx.Date, prefix) {
			continue
		}
		row, ok := rows[tx.AgentID]
		if !ok {
			continue
		}
		switch tx.Type {
		case domain.TransactionDeposit:
			// Deposits naming an inactive or unknown agent were paid by the platform.
			if !tx.AgentFunded() {
				continue
			}
			row.DepositsFunded++
			row.DepositVolume = row.DepositVolume.Add(tx.Amount)
		case domain.TransactionCommission:
			row.Commission = row.Commission.Add(tx.Amount)
		case domain.TransactionBonus:
			row.Bonuses = row.Bonuses.Add(tx.Amount)
		}
	}

	for _, a := range snap.Agents {
		report.Agents = append(report.Agents, *rows[a.ID])
	}
	sort.SliceStable(report.Agents, func(i, j int) bool {
		return report.Agents[i].DepositVolume.GreaterThan(report.Agents[j].DepositVolume)
	})
	return report, nil
}

// Dashboard computes the dashboard from the session snapshot.
func (s *Service) Dashboard() (DashboardStats, error) {
	snap, err := s.snapshots.Snapshot()
	if err != nil {
		return DashboardStats{}, err
	}
	return BuildDashboard(snap), nil
}

// UserHistory returns one user's transactions from the session snapshot.
func (s *Service) UserHistory(userID string) ([]domain.Transaction, error) {
	snap, err := s.snapshots.Snapshot()
	if err != nil {
		return nil, err
	}
	return UserHistory(snap, userID)
}

// MonthlyReport builds the monthly agent report from the session snapshot.
func (s *Service) MonthlyReport(month string) (MonthlyReport, error) {
	snap, err := s.snapshots.Snapshot()
	if err != nil {
		return MonthlyReport{}, err
	}
	return BuildMonthlyReport(snap, month)
}

// Transactions lists snapshot transactions filtered by type and status.
func (s *Service) Transactions(kind domain.TransactionType, status domain.TransactionStatus) ([]domain.Transaction, error) {
	snap, err := s.snapshots.Snapshot()
	if err != nil {
		return nil, err
	}
	return FilterTransactions(snap, kind, status), nil
}
