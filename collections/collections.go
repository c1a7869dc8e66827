// Package collections contains data structures and constants relating to Firestore collections and their entry
// structures/keys/values.
package collections

import "time"

const (
	// UsersCollection holds one profile document per subject id.
	UsersCollection = "users"
	// QueueCollection holds one document per membership record.
	QueueCollection = "queue"

	// UserIDKey is the field holding the member's subject id in the queue collection.
	UserIDKey = "userId"
	// QueueTypeKey is the field holding the queue identifier in the queue collection.
	QueueTypeKey = "queueType"
	// JoinedAtKey is the server-assigned join time; the queue is ordered by it.
	JoinedAtKey = "joinedAt"
)

// ProfileEntry is stored under users/{subjectId} at sign-up and read back to recover the role.
type ProfileEntry struct {
	Email     string    `firestore:"email"`
	Name      string    `firestore:"name"`
	Role      string    `firestore:"role"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// QueueEntry is one membership record in the queue collection. Records are never updated in place:
// they are created on join and deleted on leave.
type QueueEntry struct {
	// ID is the generated document id; it is not stored as a field.
	ID string `firestore:"-"`

	UserID    string `firestore:"userId"`
	UserName  string `firestore:"userName"`
	UserEmail string `firestore:"userEmail"`

	// JoinedAt is written as firestore.ServerTimestamp and read back as the commit time.
	JoinedAt  time.Time `firestore:"joinedAt,serverTimestamp"`
	QueueType string    `firestore:"queueType"`
}
