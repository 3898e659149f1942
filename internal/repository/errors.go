package repository

import "errors"

// ErrNotFound is returned by Store.Get when a key has never been written or
// has been deleted. The session manager reads it as "logged out", so backends
// must translate their own miss signals (sql.ErrNoRows, redis.Nil) into it.
var ErrNotFound = errors.New("repository: not found")
