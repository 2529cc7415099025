package services

import (
	"strings"

	"unity/contexts/finance-core/banking-service/domain/entities"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
)

// HistoryDateLayout matches the short en-US date shown next to each row.
const HistoryDateLayout = "Jan 2, 2006"

type StatusFilter string

const (
	StatusFilterAll       StatusFilter = "all"
	StatusFilterPending   StatusFilter = "pending"
	StatusFilterCompleted StatusFilter = "completed"
	StatusFilterFailed    StatusFilter = "failed"
)

func ParseStatusFilter(raw string) (StatusFilter, error) {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StatusFilterAll:
		return StatusFilterAll, nil
	case StatusFilterPending:
		return StatusFilterPending, nil
	case StatusFilterCompleted:
		return StatusFilterCompleted, nil
	case StatusFilterFailed:
		return StatusFilterFailed, nil
	default:
		return "", domainerrors.ErrInvalidHistoryFilter
	}
}

// FilterTransactions applies the status filter first, then the free-text search.
func FilterTransactions(items []entities.Transaction, status StatusFilter, search string) []entities.Transaction {
	term := strings.TrimSpace(search)
	out := make([]entities.Transaction, 0, len(items))
	for _, item := range items {
		if status != "" && status != StatusFilterAll && string(item.Status) != string(status) {
			continue
		}
		if term != "" && !MatchesSearch(item, term) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// MatchesSearch checks the recipient name (case-insensitive), the recipient
// account, the plain amount, and the displayed date.
func MatchesSearch(item entities.Transaction, term string) bool {
	lowered := strings.ToLower(term)
	if strings.Contains(strings.ToLower(item.Recipient.Name), lowered) {
		return true
	}
	if strings.Contains(item.Recipient.AccountNumber, term) {
		return true
	}
	if strings.Contains(item.Amount.Decimal().String(), term) {
		return true
	}
	return strings.Contains(strings.ToLower(item.CreatedAt.UTC().Format(HistoryDateLayout)), lowered)
}
