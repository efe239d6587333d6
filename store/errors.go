package store

import "github.com/pkg/errors"

// ErrConsistency marks a data-integrity violation, such as two items sharing
// one (source_name, source_id) pair. It can only happen if an invariant was
// already broken elsewhere, so it is treated as a bug: logged loudly,
// surfaced as an internal error, never silently resolved by picking one row.
var ErrConsistency = errors.New("data consistency violation")
