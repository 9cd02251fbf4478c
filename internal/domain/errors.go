package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrMalformedAnswer indicates an answer payload that is neither null, a number, nor an index array.
	ErrMalformedAnswer = errors.New("malformed answer payload")
	// ErrMalformedSubmission indicates a submission missing the fields the pipeline needs.
	ErrMalformedSubmission = errors.New("malformed submission")
)
