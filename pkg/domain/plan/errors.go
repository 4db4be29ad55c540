package plan

import (
	"fmt"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// Domain errors.
var (
	ErrInvalidPlan      = fmt.Errorf("%w: invalid plan", shared.ErrValidation)
	ErrUnknownLimitName = fmt.Errorf("%w: unknown limit name", shared.ErrValidation)
)
