package domain

import "errors"

var (
	// ErrConfig reports a malformed session configuration.
	ErrConfig = errors.New("invalid session configuration")
	// ErrResourceAcquisition reports that the speech or avatar channel could not be acquired.
	ErrResourceAcquisition = errors.New("speech channel unavailable")
	// ErrGeneration reports a failed turn generation after retry.
	ErrGeneration = errors.New("response generation failed")
	// ErrRender reports a speech or avatar playback failure.
	ErrRender = errors.New("speech rendering failed")
	// ErrInvalidTurn reports a transcript ordering violation.
	ErrInvalidTurn      = errors.New("invalid transcript turn")
	ErrTranscriptSealed = errors.New("transcript is read-only")

	ErrTurnInProgress  = errors.New("a turn is already in progress")
	ErrNoActiveSession = errors.New("no active session")
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyStarted  = errors.New("session already started")
)
