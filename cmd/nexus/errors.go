package main

import "errors"

// usageErr marks an error as invalid CLI usage (exit code 2) rather than a
// runtime failure (exit code 1).
type usageErr struct{ error }

func usageError(msg string) error { return usageErr{errors.New(msg)} }

func asUsageError(err error) bool {
	var u usageErr
	return errors.As(err, &u)
}

// policyErr marks an error as a tool safety gate rejection (exit code 3).
type policyErr struct{ error }

func wrapPolicyError(err error) error {
	if err == nil {
		return nil
	}
	return policyErr{err}
}

func asPolicyError(err error) bool {
	var p policyErr
	return errors.As(err, &p)
}
