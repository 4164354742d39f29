package audit

import (
	"fmt"
)

// VerifyError reports the first record at which the chain no longer holds.
// Everything from Index onward must be treated as tampered or corrupt.
type VerifyError struct {
	Index  int
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("audit chain broken at record %d: %s", e.Index, e.Reason)
}

// Verify re-reads an audit file and checks the whole chain independently of
// the writer: each record's hash must match a recomputation from its fields,
// and each prev must equal the previous record's stored hash. It returns the
// number of verified records.
func Verify(path string) (int, error) {
	records, err := ReadAll(path)
	if err != nil {
		return 0, err
	}
	return VerifyRecords(records)
}

// VerifyRecords checks an in-memory chain. See Verify.
func VerifyRecords(records []Record) (int, error) {
	prev := Genesis
	for i, rec := range records {
		if rec.Prev != prev {
			return i, &VerifyError{Index: i, Reason: fmt.Sprintf("prev %q does not match previous hash %q", rec.Prev, prev)}
		}
		computed, err := hashRecord(rec)
		if err != nil {
			return i, &VerifyError{Index: i, Reason: fmt.Sprintf("unhashable record: %v", err)}
		}
		if computed != rec.Hash {
			return i, &VerifyError{Index: i, Reason: fmt.Sprintf("stored hash %q does not match recomputed %q", rec.Hash, computed)}
		}
		prev = rec.Hash
	}
	return len(records), nil
}
