package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a standard five-field expression or a descriptor such
// as "@daily". "@every" is rejected because its next run depends on when
// the process started.
func ParseCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: cron expression is required", shared.ErrValidation)
	}
	if strings.HasPrefix(expr, "@every") {
		return nil, fmt.Errorf("%w: @every is not supported", shared.ErrValidation)
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot parse cron expression: %s", shared.ErrValidation, err.Error())
	}
	return sched, nil
}

// ValidateCron reports whether expr can be scheduled.
func ValidateCron(expr string) error {
	_, err := ParseCron(expr)
	return err
}

// NextRun returns the first activation of expr strictly after from, in UTC.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from.UTC()), nil
}
