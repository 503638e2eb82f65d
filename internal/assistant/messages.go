package assistant

// Fixed texts appended (and usually spoken) by the assistant.
const (
	MsgFallbackChat          = "Sorry, I didn't quite get that. Could you say it another way?"
	MsgActionAck             = "On it."
	MsgActionDone            = "Done."
	MsgActionError           = "Something went wrong with that request."
	MsgInfoEmpty             = "I couldn't find any hall information right now."
	MsgTrouble               = "I'm having trouble connecting right now. Please try again in a moment."
	MsgRecognizerUnavailable = "Voice input isn't available here. Please type your request instead."
	MsgRecognitionFailed     = "I couldn't hear that clearly. Turn the mic on to try again."
	MsgSpeechUnavailable     = "I couldn't play the audio for that reply."
	MsgFollowUpDone          = "All set. Your booking request has been submitted."
	MsgFollowUpFailed        = "I couldn't complete that booking. Please try again from the booking page."
)
