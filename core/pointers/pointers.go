// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package pointers converts between optional column values and pointers
package pointers

import (
	"database/sql"
	"time"
)

// FromNullString returns nil for NULL
func FromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

// FromNullInt64 returns nil for NULL
func FromNullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

// FromNullTime returns nil for NULL, otherwise the time in UTC
func FromNullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

// Arg returns the value of ptr as a query argument, nil becomes NULL
func Arg[T any](ptr *T) interface{} {
	if ptr == nil {
		return nil
	}
	return *ptr
}
