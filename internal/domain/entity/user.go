package entity

type User struct {
	ID          string          `json:"uid" firestore:"-"`
	DisplayName string          `json:"display_name" firestore:"displayName"`
	Username    string          `json:"username" firestore:"username"`
	Email       string          `json:"email,omitempty" firestore:"email"`
	PhotoURL    string          `json:"photo_url,omitempty" firestore:"photoURL"`
	Friends     map[string]bool `json:"-" firestore:"friends"`
	CreatedAt   int64           `json:"created_at" firestore:"createdAt"`
	UpdatedAt   int64           `json:"updated_at,omitempty" firestore:"updatedAt,omitempty"`
	LastSeen    int64           `json:"last_seen,omitempty" firestore:"lastSeen"`
}

// PublicUser is what other participants may see of a profile.
type PublicUser struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		UID:         u.ID,
		DisplayName: u.DisplayName,
		Username:    u.Username,
	}
}
