package metrics

import (
	"errors"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

var errorKinds = []struct {
	kind  error
	label string
}{
	{domain.ErrValidation, "invalid"},
	{domain.ErrNotFound, "not_found"},
	{domain.ErrConflict, "conflict"},
	{domain.ErrForbidden, "forbidden"},
	{domain.ErrTemporary, "unavailable"},
	{domain.ErrTransaction, "transaction_failed"},
}

func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			return k.label
		}
	}
	return ""
}
