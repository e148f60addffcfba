package notify

import "unicode/utf8"

const (
	// PreviewLength is the number of characters of message text shown in a push.
	PreviewLength = 100
	ellipsis      = "..."

	// FallbackSenderName is used when the sender has no display name.
	FallbackSenderName = "Someone"
	// GroupTitleSuffix follows the chat display name in public chat pushes.
	GroupTitleSuffix = " Chat"
)

// Truncate cuts text to PreviewLength runes and appends an ellipsis when it was longer.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:PreviewLength]) + ellipsis
}

// DirectContent builds the title and body of a direct chat push.
func DirectContent(senderName, text string) (title, body string) {
	return senderOrFallback(senderName), Truncate(text)
}

// GroupContent builds the title and body of a public chat push.
func GroupContent(chatName, senderName, text string) (title, body string) {
	return chatName + GroupTitleSuffix, senderOrFallback(senderName) + ": " + Truncate(text)
}

func senderOrFallback(name string) string {
	if name == "" {
		return FallbackSenderName
	}
	return name
}
