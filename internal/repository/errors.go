// Package repository owns the persisted user collection.  Sentinel
// errors defined here let handlers translate failure scenarios into
// HTTP statuses without string matching.
package repository

import "errors"

// ErrUserNotFound is returned when an operation references a userId
// that is not present in the collection.  Handlers should translate
// this into an HTTP 404 or a "User not found" result.
var ErrUserNotFound = errors.New("user not found")

// ErrDuplicateUser is returned when Create is called with a userId
// that already exists.  The collection is never silently overwritten;
// handlers should translate this into an HTTP 400/409 conflict.
var ErrDuplicateUser = errors.New("user ID already exists")
