// Copyright 2017-2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package check

import (
	"github.com/hashicorp/go-multierror"
)

func bounds(what string, length, start, end uint64) error {
	var result *multierror.Error
	if end < start {
		result = multierror.Append(result, &ErrEndLessThanStart{What: what, Start: start, End: end})
	}
	if end > length {
		result = multierror.Append(result, &ErrOutOfBounds{What: what, End: end, Length: length})
	}

	return result.ErrorOrNil()
}

// BytesRange checks that the region [start, end) passes sanity checks:
// * start <= end
// * end <= length
func BytesRange(what string, length, start, end uint64) error {
	return bounds(what, length, start, end)
}
