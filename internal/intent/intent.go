package intent

import (
	"regexp"
	"strings"
)

// Intent is a coarse classification of a user turn, used by the
// orchestrator for tool-call augmentation and redundancy suppression.
type Intent int

const (
	// General is everything without a recognized shape.
	General Intent = iota
	// Confirmation is a short acknowledgement of the previous answer
	// ("yes", "ok", "that one") carrying no new request.
	Confirmation
	// StatusQuery asks about the health of services or containers.
	StatusQuery
	// CaptureRequest asks to look at the screen or a window.
	CaptureRequest
)

func (i Intent) String() string {
	switch i {
	case Confirmation:
		return "confirmation"
	case StatusQuery:
		return "status_query"
	case CaptureRequest:
		return "capture_request"
	default:
		return "general"
	}
}

var confirmationRe = regexp.MustCompile(`^(yes|yeah|yep|yup|ok|okay|sure|right|correct|exactly|sounds good|go ahead|do it|that one|that's it|thats it|the (first|second|third|fourth|fifth) one)[.!]*$`)

var statusSubjectRe = regexp.MustCompile(`\b(docker|containers?|services?|servers?|database|db|deployment|pods?|processes)\b`)
var statusStateRe = regexp.MustCompile(`\b(status|running|up|down|healthy|health|alive|crashed|stopped|working|ok)\b`)

var captureRe = regexp.MustCompile(`\b(screenshot|capture|look at|see|check|read|what'?s (on|in))\b.*\b(screen|window|monitor|display)\b`)

// Classify returns the intent of a user message. Pure and
// deterministic; the orchestrator treats anything unrecognized as
// General rather than guessing.
func Classify(text string) Intent {
	msg := strings.ToLower(strings.TrimSpace(text))
	if msg == "" {
		return General
	}

	if len(msg) <= 40 && confirmationRe.MatchString(msg) {
		return Confirmation
	}
	if captureRe.MatchString(msg) {
		return CaptureRequest
	}
	if statusSubjectRe.MatchString(msg) && statusStateRe.MatchString(msg) {
		return StatusQuery
	}
	return General
}
