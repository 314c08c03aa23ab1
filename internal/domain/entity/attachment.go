package entity

// Attachment records an image uploaded into a chat.
type Attachment struct {
	ID          string `json:"id" firestore:"-"`
	ChatID      string `json:"chat_id" firestore:"-"`
	URL         string `json:"url" firestore:"url"`
	ObjectName  string `json:"-" firestore:"objectName"`
	UploadedBy  string `json:"uploaded_by" firestore:"uploadedBy"`
	ContentType string `json:"content_type" firestore:"contentType"`
	Size        int64  `json:"size" firestore:"size"`
	CreatedAt   int64  `json:"created_at" firestore:"createdAt"`
}
