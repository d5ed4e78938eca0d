package core

import (
	"errors"
	"net/http"
)

// Problem captures the information returned in an RFC 7807 error response.
type Problem struct {
	Type     string
	Title    string
	Status   int
	Detail   string
	Instance string
	Extras   map[string]any
}

// NormalizeProblem ensures the provided problem includes canonical defaults.
func NormalizeProblem(problem *Problem) *Problem {
	if problem == nil {
		problem = &Problem{}
	}
	if problem.Status == 0 {
		problem.Status = http.StatusInternalServerError
	}
	if problem.Title == "" {
		problem.Title = http.StatusText(problem.Status)
	}
	if problem.Type == "" {
		problem.Type = "about:blank"
	}
	return problem
}

// BuildProblemBody assembles the serialized representation of the problem.
func BuildProblemBody(problem *Problem) map[string]any {
	body := map[string]any{
		"status": problem.Status,
		"error":  problem.Title,
	}
	if problem.Detail != "" {
		body["details"] = problem.Detail
	}
	if code, ok := problem.Extras["code"]; ok {
		body["code"] = code
	}
	if problem.Type != "" {
		body["type"] = problem.Type
	}
	if problem.Instance != "" {
		body["instance"] = problem.Instance
	}
	for key, value := range problem.Extras {
		if !isReservedProblemKey(key) {
			body[key] = value
		}
	}
	return body
}

// ProblemFromError maps an engine error onto a problem document using the
// error kind taxonomy for the HTTP status.
func ProblemFromError(err error, instance string) *Problem {
	problem := &Problem{
		Detail:   err.Error(),
		Instance: instance,
	}
	switch KindFromError(err) {
	case KindValidation, KindGathering:
		problem.Status = http.StatusBadRequest
	case KindNotFound:
		problem.Status = http.StatusNotFound
	case KindAuth:
		problem.Status = http.StatusUnauthorized
	case KindAPI:
		problem.Status = http.StatusBadGateway
	default:
		problem.Status = http.StatusInternalServerError
	}
	var cerr *Error
	if errors.As(err, &cerr) && cerr.Code != "" {
		problem.Extras = map[string]any{"code": cerr.Code}
	}
	return NormalizeProblem(problem)
}

func isReservedProblemKey(key string) bool {
	switch key {
	case "status", "error", "details", "code", "type", "instance":
		return true
	default:
		return false
	}
}
