package middleware

import "errors"

var errRateLimited = errors.New("submit rate limit exceeded")
