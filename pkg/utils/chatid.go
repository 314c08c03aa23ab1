package utils

import (
	"errors"
	"sort"
	"strings"
)

const chatIDSeparator = "_"

var (
	ErrInvalidChatID  = errors.New("invalid chat id")
	ErrNotParticipant = errors.New("user is not a participant of this chat")
)

// ChatID derives the conversation key for two participants. The result does
// not depend on argument order.
func ChatID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, chatIDSeparator)
}

// ParseChatID splits a conversation key into its two participants and checks
// that it is exactly what ChatID would have produced for them.
func ParseChatID(chatID string) (string, string, error) {
	parts := strings.Split(chatID, chatIDSeparator)
	if len(parts) != 2 {
		return "", "", ErrInvalidChatID
	}

	a, b := parts[0], parts[1]
	if !ValidUID(a) || !ValidUID(b) || a == b || a > b {
		return "", "", ErrInvalidChatID
	}

	return a, b, nil
}

// PeerOf returns the participant of chatID that is not uid.
func PeerOf(chatID, uid string) (string, error) {
	a, b, err := ParseChatID(chatID)
	if err != nil {
		return "", err
	}

	switch uid {
	case a:
		return b, nil
	case b:
		return a, nil
	default:
		return "", ErrNotParticipant
	}
}

// ValidUID reports whether uid can be embedded in a chat id and a document path.
func ValidUID(uid string) bool {
	if uid == "" || len(uid) > 128 {
		return false
	}
	return !strings.ContainsAny(uid, chatIDSeparator+"/. ")
}
