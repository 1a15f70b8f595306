package service

import "fmt"

// Stage names the cycle step that failed.
type Stage string

const (
	StageAuthenticate Stage = "authenticate"
	StageFetch        Stage = "fetch"
	StageMarkers      Stage = "markers"
	StageWrite        Stage = "write"
)

// UpdateFailedError is what the scheduler sees when a cycle fails. Retry timing is the caller's business.
type UpdateFailedError struct {
	Stage Stage
	Err   error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("update failed at %s: %v", e.Stage, e.Err)
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

func failed(stage Stage, err error) error {
	return &UpdateFailedError{Stage: stage, Err: err}
}
