package domain

import "time"

// InboundMessage is a user turn arriving from a chat surface.
type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	Content   string
	Images    []string
	Timestamp time.Time
}

// OutboundMessage is anything pushed back to a chat surface: streamed
// fragments, final answers, screen-change notices, or a pending action
// that needs human approval.
type OutboundMessage struct {
	Channel     string
	ChatID      string
	Content     string
	Format      string // text | markdown
	StreamEvent *StreamEvent
	// Pending is set when a command is waiting for approval; surfaces
	// render it as an approve/deny prompt.
	Pending *ActionRequest
}

// MessageBus routes messages between chat surfaces and the agent.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channelName string, handler func(OutboundMessage))
	Close()
}
