package main

// ExitCodeError wraps an error with a specific process exit code. Most
// commands exit 1 on error; `select --strict` exits 2 on a degraded pick so
// scripts can tell the two apart.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
