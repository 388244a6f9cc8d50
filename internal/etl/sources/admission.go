package sources

import (
	"fmt"

	"dataeng/internal/etl"
)

// admit applies an admission policy to a record with an unparsable field.
// It reports whether the record is kept; under AdmitFail it returns the error.
func admit(policy etl.AdmissionPolicy, rec etl.Record, field string, cause error) (bool, error) {
	switch policy {
	case etl.AdmitDrop:
		return false, nil
	case etl.AdmitFail:
		return false, fmt.Errorf("%w: field %q: %w", etl.ErrFieldParse, field, cause)
	default:
		rec.Data[field] = nil
		return true, nil
	}
}
