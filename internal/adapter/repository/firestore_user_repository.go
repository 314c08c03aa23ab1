package repository

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
	"duochat/pkg/errors"
)

const (
	usersCollection     = "users"
	usernamesCollection = "usernames"
)

type firestoreUserRepository struct {
	client *firestore.Client
	now    func() time.Time
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
		now:    time.Now,
	}
}

func (r *firestoreUserRepository) user(uid string) *firestore.DocumentRef {
	return r.client.Collection(usersCollection).Doc(uid)
}

// Usernames are unique regardless of case.
func (r *firestoreUserRepository) username(name string) *firestore.DocumentRef {
	return r.client.Collection(usernamesCollection).Doc(strings.ToLower(name))
}

func (r *firestoreUserRepository) summary(uid, chatID string) *firestore.DocumentRef {
	return r.client.Collection(chatListCollection).Doc(uid).Collection(chatListItems).Doc(chatID)
}

func (r *firestoreUserRepository) Create(ctx context.Context, user *entity.User) error {
	now := r.now().UnixMilli()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.LastSeen = now
	if user.Friends == nil {
		user.Friends = map[string]bool{}
	}

	userRef := r.user(user.ID)
	nameRef := r.username(user.Username)

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := r.exists(tx.Get(userRef))
		if err != nil {
			return err
		}
		if existing {
			return errors.Conflict("Profile already exists")
		}

		taken, err := r.exists(tx.Get(nameRef))
		if err != nil {
			return err
		}
		if taken {
			return errors.Conflict("Username is already taken")
		}

		if err := tx.Set(userRef, user); err != nil {
			return err
		}
		return tx.Set(nameRef, map[string]interface{}{"uid": user.ID})
	})
}

func (r *firestoreUserRepository) GetByID(ctx context.Context, uid string) (*entity.User, error) {
	doc, err := r.user(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", err)
		}
		return nil, errors.Internal("Failed to get user", err)
	}

	return decodeUser(doc)
}

// GetMany returns the profiles that exist among uids, keyed by uid.
func (r *firestoreUserRepository) GetMany(ctx context.Context, uids []string) (map[string]*entity.User, error) {
	users := make(map[string]*entity.User, len(uids))
	if len(uids) == 0 {
		return users, nil
	}

	refs := make([]*firestore.DocumentRef, len(uids))
	for i, uid := range uids {
		refs[i] = r.user(uid)
	}

	docs, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, errors.Internal("Failed to get users", err)
	}

	for _, doc := range docs {
		if !doc.Exists() {
			continue
		}
		user, err := decodeUser(doc)
		if err != nil {
			return nil, err
		}
		users[user.ID] = user
	}

	return users, nil
}

func (r *firestoreUserRepository) Exists(ctx context.Context, uid string) (bool, error) {
	return r.exists(r.user(uid).Get(ctx))
}

func (r *firestoreUserRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	doc, err := r.username(username).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", err)
		}
		return nil, errors.Internal("Failed to look up username", err)
	}

	uid, ok := doc.Data()["uid"].(string)
	if !ok || uid == "" {
		return nil, errors.NotFound("User", nil)
	}

	return r.GetByID(ctx, uid)
}

// UpdateProfile changes the display name and, when it differs, moves the
// username claim.
func (r *firestoreUserRepository) UpdateProfile(ctx context.Context, uid, displayName, username string) error {
	userRef := r.user(uid)

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(userRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("User", err)
			}
			return errors.Internal("Failed to get user", err)
		}

		current, err := decodeUser(doc)
		if err != nil {
			return err
		}

		renamed := !strings.EqualFold(current.Username, username)
		newName := r.username(username)
		if renamed {
			taken, err := r.exists(tx.Get(newName))
			if err != nil {
				return err
			}
			if taken {
				return errors.Conflict("Username is already taken")
			}
		}

		updates := []firestore.Update{
			{Path: "displayName", Value: displayName},
			{Path: "username", Value: username},
			{Path: "updatedAt", Value: r.now().UnixMilli()},
		}
		if err := tx.Update(userRef, updates); err != nil {
			return err
		}

		if !renamed {
			return nil
		}
		if err := tx.Delete(r.username(current.Username)); err != nil {
			return err
		}
		return tx.Set(newName, map[string]interface{}{"uid": uid})
	})
}

func (r *firestoreUserRepository) AddFriend(ctx context.Context, uid, friendUID, chatID string, now int64) error {
	userRef, friendRef := r.user(uid), r.user(friendUID)
	mine, theirs := r.summary(uid, chatID), r.summary(friendUID, chatID)

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, err := tx.GetAll([]*firestore.DocumentRef{userRef, friendRef, mine, theirs})
		if err != nil {
			return errors.Internal("Failed to read friendship", err)
		}
		if !docs[0].Exists() {
			return errors.NotFound("User", nil)
		}
		if !docs[1].Exists() {
			return errors.NotFound("Friend", nil)
		}

		if err := tx.Update(userRef, []firestore.Update{{FieldPath: firestore.FieldPath{"friends", friendUID}, Value: true}}); err != nil {
			return err
		}
		if err := tx.Update(friendRef, []firestore.Update{{FieldPath: firestore.FieldPath{"friends", uid}, Value: true}}); err != nil {
			return err
		}

		if !docs[2].Exists() {
			if err := tx.Set(mine, &entity.ChatSummary{LastTimestamp: now, FriendUID: friendUID}); err != nil {
				return err
			}
		}
		if !docs[3].Exists() {
			if err := tx.Set(theirs, &entity.ChatSummary{LastTimestamp: now, FriendUID: uid}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *firestoreUserRepository) RemoveFriend(ctx context.Context, uid, friendUID string) error {
	userRef, friendRef := r.user(uid), r.user(friendUID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Update(userRef, []firestore.Update{{FieldPath: firestore.FieldPath{"friends", friendUID}, Value: firestore.Delete}}); err != nil {
			return err
		}
		return tx.Update(friendRef, []firestore.Update{{FieldPath: firestore.FieldPath{"friends", uid}, Value: firestore.Delete}})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("User", err)
		}
		return errors.Internal("Failed to remove friend", err)
	}

	return nil
}

func (r *firestoreUserRepository) exists(doc *firestore.DocumentSnapshot, err error) (bool, error) {
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, errors.Internal("Failed to read document", err)
	}
	return doc.Exists(), nil
}

func decodeUser(doc *firestore.DocumentSnapshot) (*entity.User, error) {
	var user entity.User
	if err := doc.DataTo(&user); err != nil {
		return nil, errors.Internal("Failed to parse user data", err)
	}
	user.ID = doc.Ref.ID
	if user.Friends == nil {
		user.Friends = map[string]bool{}
	}
	return &user, nil
}
