// SPDX-License-Identifier: AGPL-3.0-or-later

package rundb

import (
	"errors"
	"strings"

	sqlite3 "modernc.org/sqlite/lib"
)

// ErrLogQuotaExceeded is returned for a single log line larger than the whole
// log budget.
var ErrLogQuotaExceeded = errors.New("rundb: log quota exceeded")

type codeError interface {
	Code() int
}

// IsQuotaExceeded reports whether err means the history DB is full, either
// through the log budget or SQLite's max_page_count.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrLogQuotaExceeded) {
		return true
	}
	var coder codeError
	if errors.As(err, &coder) && coder.Code() == int(sqlite3.SQLITE_FULL) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "database or disk is full")
}
