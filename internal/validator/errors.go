package validator

import (
	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Err converts a rejecting decision into its taxonomy error. Accepted
// decisions return nil.
func (d Decision) Err() error {
	if d.Accepted {
		return nil
	}
	return errors.Wrap(classErr(d.Reason.Class()), d.Reason.String())
}

func classErr(class schema.ReasonClass) error {
	switch class {
	case schema.ClassFormat:
		return exception.ErrFormat
	case schema.ClassRange:
		return exception.ErrRange
	case schema.ClassSession:
		return exception.ErrSession
	case schema.ClassStructural:
		return exception.ErrStructural
	case schema.ClassRisk:
		return exception.ErrRisk
	default:
		return exception.ErrRange
	}
}
