package entitlements

import "strings"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// NormalizePlan maps arbitrary plan strings to a known plan, defaulting to free.
func NormalizePlan(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanPro):
		return PlanPro
	default:
		return PlanFree
	}
}

// PlanRank orders plans so the best of several candidates can be selected.
func PlanRank(plan Plan) int {
	switch plan {
	case PlanPro:
		return 1
	default:
		return 0
	}
}

// MaxCalendarAccounts returns how many external calendar accounts a plan may link.
func MaxCalendarAccounts(plan Plan) int {
	switch plan {
	case PlanPro:
		return 5
	default:
		return 1
	}
}

// AllowsMultiAccount reports whether the plan permits more than one linked calendar account.
func AllowsMultiAccount(plan Plan) bool {
	return MaxCalendarAccounts(plan) > 1
}
