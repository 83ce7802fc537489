package workers

import "errors"

var errWriteFailed = errors.New("simulated write failure")
