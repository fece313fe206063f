package request

import "fmt"

// Errors returned by Repository and CounterRepository implementations.
var ErrRequestNotFound = fmt.Errorf("report request not found")
var ErrCounterNotFound = fmt.Errorf("run counter not found")
var ErrDuplicateCounter = fmt.Errorf("run counter already exists")
