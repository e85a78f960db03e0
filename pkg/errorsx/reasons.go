package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonRecognizerConnect   ReasonCode = "recognizer_connect"
	ReasonRecognizerSend      ReasonCode = "recognizer_send"
	ReasonRecognizerReset     ReasonCode = "recognizer_reset"
	ReasonRecognizerRetry     ReasonCode = "recognizer_retry"
	ReasonRecognizerRateLimit ReasonCode = "recognizer_rate_limit"

	ReasonLLMGenerate  ReasonCode = "llm_generate"
	ReasonLLMCancelled ReasonCode = "llm_cancelled"
	ReasonLLMRateLimit ReasonCode = "llm_rate_limit"

	ReasonPlaybackStart  ReasonCode = "playback_start"
	ReasonPlaybackCancel ReasonCode = "playback_cancel"
	ReasonPlaybackFailed ReasonCode = "playback_failed"

	ReasonStaleEpoch  ReasonCode = "stale_epoch"
	ReasonTurnStarved ReasonCode = "turn_starved"

	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"
	ReasonTransportSend             ReasonCode = "transport_send"
)
