package governance

import (
	"errors"
	"fmt"
	"strings"
)

// UnknownClusterError is a configuration mismatch: the named cluster is not
// in the registry. Raised before any network interaction.
type UnknownClusterError struct {
	Name      string
	Available []string
}

func (e *UnknownClusterError) Error() string {
	return fmt.Sprintf("unknown cluster %q, available clusters: %s",
		e.Name, strings.Join(e.Available, ", "))
}

// NotFoundError covers both an absent dashboard and a read-tag denial; the
// two are deliberately indistinguishable to the caller.
type NotFoundError struct {
	Kind string // "dashboard", "folder", "panel", ...
	UID  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.UID)
}

// AccessDeniedError is a mutation attempted on a dashboard lacking the
// required protection tags.
type AccessDeniedError struct {
	Operation    string
	RequiredTags []string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("cannot %s dashboard: missing required tags %s. "+
		"This dashboard was not created by this system or has been modified",
		e.Operation, strings.Join(e.RequiredTags, ", "))
}

// AlreadyExistsError is a create colliding with an existing uid.
type AlreadyExistsError struct {
	UID string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("dashboard with uid %q already exists", e.UID)
}

// InvalidArgumentError is a malformed input that has no sane default to
// clamp to.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string { return e.Msg }

// UpstreamError is a store or network failure, carrying a hint derived from
// the HTTP status where one is known.
type UpstreamError struct {
	Status int
	Hint   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %v", e.Hint, e.Err)
	}
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsAccessDenied(err error) bool {
	var ad *AccessDeniedError
	return errors.As(err, &ad)
}

// statusCoder is implemented by the OpenAPI runtime errors, the generated
// typed responses, and the raw-transport HTTPError.
type statusCoder interface {
	Code() int
}

// translateStoreError maps a store failure onto the error taxonomy. The kind
// and uid name the resource for 404 translation.
func translateStoreError(err error, kind, uid string) error {
	if err == nil {
		return nil
	}

	var coder statusCoder
	if errors.As(err, &coder) {
		switch code := coder.Code(); {
		case code == 401:
			return &UpstreamError{Status: code, Hint: "authentication failed, check the cluster token", Err: err}
		case code == 403:
			return &UpstreamError{Status: code, Hint: "permission denied, check the token permissions", Err: err}
		case code == 404:
			return &NotFoundError{Kind: kind, UID: uid}
		case code == 409:
			return &AlreadyExistsError{UID: uid}
		case code == 412:
			return &UpstreamError{Status: code, Hint: "precondition failed, name or version conflict", Err: err}
		case code >= 500:
			return &UpstreamError{Status: code, Hint: "backend error, try again later", Err: err}
		}
	}
	return &UpstreamError{Err: err}
}
