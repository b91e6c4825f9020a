package httpapi

import "careerlens/internal/domain"

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonCreated:
		return "Session ready"
	case domain.SessionReasonAcquiring:
		return "Connecting speech..."
	case domain.SessionReasonResourcesUnavailable:
		return "Speech unavailable; try again"
	case domain.SessionReasonGenerating:
		return "Thinking..."
	case domain.SessionReasonSpeaking:
		return "Speaking"
	case domain.SessionReasonListening:
		return "Listening"
	case domain.SessionReasonGenerationFailed:
		return "Could not generate a reply; keep talking to retry"
	case domain.SessionReasonRenderFailed:
		return "Playback failed; listening"
	case domain.SessionReasonWrappingUp:
		return "Wrapping up"
	case domain.SessionReasonCompleted:
		return "Session complete"
	case domain.SessionReasonUserEnded:
		return "Session ended"
	case domain.SessionReasonExpired:
		return "Session expired"
	case domain.SessionReasonInvalidTurn:
		return "Session ended after an invalid turn"
	case domain.SessionReasonFinished:
		return "Session finished"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeConfig:
		return "Invalid session settings"
	case domain.ErrorCodeResources:
		return "Speech or avatar unavailable"
	case domain.ErrorCodeGeneration:
		return "Response generation failed"
	case domain.ErrorCodeRender:
		return "Speech playback failed"
	case domain.ErrorCodeCapture:
		return "Listening issue"
	case domain.ErrorCodeInvalidTurn:
		return "Invalid turn"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	case domain.ErrorCodeArchive:
		return "Session could not be saved"
	case domain.ErrorCodeRelease:
		return "Speech cleanup issue"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
