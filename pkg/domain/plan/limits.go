package plan

import (
	"fmt"
	"strconv"
)

// Unlimited is the raw limit value meaning "no cap". Callers doing quota
// arithmetic on raw values must check for it before comparing.
const Unlimited = -1

// LimitName identifies a numeric plan limit.
type LimitName string

// Limit names.
const (
	LimitScansPerDay          LimitName = "scansPerDay"
	LimitMaxWorkspaces        LimitName = "maxWorkspaces"
	LimitMaxUsersPerWorkspace LimitName = "maxUsersPerWorkspace"
	LimitRetentionDays        LimitName = "retentionDays"
)

var limitNames = []LimitName{
	LimitScansPerDay,
	LimitMaxWorkspaces,
	LimitMaxUsersPerWorkspace,
	LimitRetentionDays,
}

// LimitNames returns every known limit name.
func LimitNames() []LimitName {
	out := make([]LimitName, len(limitNames))
	copy(out, limitNames)
	return out
}

// ParseLimitName parses a limit name. Matching is exact.
func ParseLimitName(s string) (LimitName, error) {
	for _, n := range limitNames {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLimitName, s)
}

// PlanLimits holds the raw numeric limits of a plan. A value of Unlimited
// means the limit does not apply.
type PlanLimits struct {
	ScansPerDay          int `json:"scansPerDay" yaml:"scansPerDay"`
	MaxWorkspaces        int `json:"maxWorkspaces" yaml:"maxWorkspaces"`
	MaxUsersPerWorkspace int `json:"maxUsersPerWorkspace" yaml:"maxUsersPerWorkspace"`
	RetentionDays        int `json:"retentionDays" yaml:"retentionDays"`
}

func (l PlanLimits) get(name LimitName) (int, bool) {
	switch name {
	case LimitScansPerDay:
		return l.ScansPerDay, true
	case LimitMaxWorkspaces:
		return l.MaxWorkspaces, true
	case LimitMaxUsersPerWorkspace:
		return l.MaxUsersPerWorkspace, true
	case LimitRetentionDays:
		return l.RetentionDays, true
	}
	return 0, false
}

var planLimits = map[Plan]PlanLimits{
	Starter: {
		ScansPerDay:          3,
		MaxWorkspaces:        1,
		MaxUsersPerWorkspace: 3,
		RetentionDays:        7,
	},
	Pro: {
		ScansPerDay:          25,
		MaxWorkspaces:        5,
		MaxUsersPerWorkspace: 10,
		RetentionDays:        30,
	},
	Business: {
		ScansPerDay:          200,
		MaxWorkspaces:        25,
		MaxUsersPerWorkspace: 50,
		RetentionDays:        180,
	},
	Enterprise: {
		ScansPerDay:          Unlimited,
		MaxWorkspaces:        Unlimited,
		MaxUsersPerWorkspace: Unlimited,
		RetentionDays:        Unlimited,
	},
}

// GetLimit returns the raw value of limit name for plan p. The result is
// Unlimited (-1) when the plan has no cap.
func GetLimit(p Plan, name LimitName) (int, error) {
	limits, ok := planLimits[p]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPlan, string(p))
	}
	v, ok := limits.get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLimitName, string(name))
	}
	return v, nil
}

// Limits returns all limits of plan p.
func Limits(p Plan) (PlanLimits, error) {
	limits, ok := planLimits[p]
	if !ok {
		return PlanLimits{}, fmt.Errorf("%w: %q", ErrInvalidPlan, string(p))
	}
	return limits, nil
}

// Limit is a plan limit with the unlimited case made explicit.
type Limit struct {
	max       int
	unlimited bool
}

// LimitOf wraps a raw limit value.
func LimitOf(raw int) Limit {
	if raw == Unlimited {
		return Limit{unlimited: true}
	}
	return Limit{max: raw}
}

// Lookup resolves limit name for plan p as a Limit.
func Lookup(p Plan, name LimitName) (Limit, error) {
	raw, err := GetLimit(p, name)
	if err != nil {
		return Limit{}, err
	}
	return LimitOf(raw), nil
}

// IsUnlimited reports whether the limit has no cap.
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Max returns the cap. It is only meaningful when IsUnlimited is false.
func (l Limit) Max() int {
	return l.max
}

// Raw returns the limit in its raw form, Unlimited or the cap.
func (l Limit) Raw() int {
	if l.unlimited {
		return Unlimited
	}
	return l.max
}

// Allows reports whether one more unit may be consumed when usage units are
// already in use.
func (l Limit) Allows(usage int) bool {
	if l.unlimited {
		return true
	}
	return usage < l.max
}

// Remaining returns how many units are left. ok is false for an unlimited limit.
func (l Limit) Remaining(usage int) (remaining int, ok bool) {
	if l.unlimited {
		return 0, false
	}
	if usage >= l.max {
		return 0, true
	}
	return l.max - usage, true
}

func (l Limit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return strconv.Itoa(l.max)
}

// MarshalJSON encodes the limit in its raw form.
func (l Limit) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(l.Raw())), nil
}
