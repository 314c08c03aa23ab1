package entity

// ChatSummary is one participant's view of a conversation in their chat list.
type ChatSummary struct {
	ChatID        string `json:"chat_id" firestore:"-"`
	LastMessage   string `json:"last_message" firestore:"lastMessage"`
	LastTimestamp int64  `json:"last_timestamp" firestore:"lastTimestamp"`
	FriendUID     string `json:"friend_uid" firestore:"friendUid"`
}

// ChatListItem is a ChatSummary joined with the friend's profile.
type ChatListItem struct {
	ChatSummary
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
}
