// Package storage wraps the Firebase and Firestore clients: profiles, queue membership records, the
// live queue listener and the identity provider.
package storage

import (
	"context"
	"time"

	log "queueserver/cloudlog"
	"queueserver/collections"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"firebase.google.com/go/auth"
	"github.com/pkg/errors"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Options configures Open.
type Options struct {
	ProjectID string

	// APIKey is the web API key of the project, needed for password sign-in and sign-up.
	APIKey string

	// ClientOptions are passed to every Google client, e.g. a credentials file.
	ClientOptions []option.ClientOption
}

// QueueStorage holds the Firebase and Firestore clients used by the server.
type QueueStorage struct {
	app     *firebase.App
	auth    *auth.Client
	client  *firestore.Client
	toolkit *identitytoolkit.RelyingpartyService

	users *firestore.CollectionRef
	queue *firestore.CollectionRef
}

// Open connects to Firebase Auth, Firestore and the Identity Toolkit.
func Open(ctx context.Context, opts Options) (*QueueStorage, error) {
	qs := &QueueStorage{}
	var err error
	qs.app, err = firebase.NewApp(ctx, &firebase.Config{ProjectID: opts.ProjectID}, opts.ClientOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "initiate Firebase App failed")
	}
	qs.client, err = firestore.NewClient(ctx, opts.ProjectID, opts.ClientOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "initiate Firestore client failed")
	}
	qs.auth, err = qs.app.Auth(ctx)
	if err != nil {
		qs.client.Close()
		return nil, errors.Wrap(err, "initiate Firebase Auth failed")
	}
	toolkit, err := identitytoolkit.NewService(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		qs.client.Close()
		return nil, errors.Wrap(err, "initiate Identity Toolkit failed")
	}
	qs.toolkit = toolkit.Relyingparty

	qs.users = qs.client.Collection(collections.UsersCollection)
	qs.queue = qs.client.Collection(collections.QueueCollection)
	return qs, nil
}

// Close performs cleanup for closing storage connections.
func (qs *QueueStorage) Close() {
	if err := qs.client.Close(); err != nil {
		log.Printf("Error closing Firestore client: %v", err)
	}
}

// CreateProfile writes the profile of a new account under users/{uid}.
func (qs *QueueStorage) CreateProfile(ctx context.Context, uid string, entry collections.ProfileEntry) error {
	_, err := qs.users.Doc(uid).Set(ctx, entry)
	return errors.Wrapf(err, "set profile %s", uid)
}

// Profile reads users/{uid}. A missing profile is not an error: it gives a nil entry. NotFound from
// Get is silenced because that info is reflected in the nil return.
func (qs *QueueStorage) Profile(ctx context.Context, uid string) (*collections.ProfileEntry, error) {
	snapshot, err := qs.users.Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get profile %s", uid)
	}
	if !snapshot.Exists() {
		return nil, nil
	}
	entry := &collections.ProfileEntry{}
	if err := snapshot.DataTo(entry); err != nil {
		return nil, errors.Wrapf(err, "decode profile %s", uid)
	}
	return entry, nil
}

// MembershipExists queries the queue collection for a record of userID in queueType.
func (qs *QueueStorage) MembershipExists(ctx context.Context, userID, queueType string) (bool, error) {
	iter := qs.queue.
		Where(collections.UserIDKey, "==", userID).
		Where(collections.QueueTypeKey, "==", queueType).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()
	_, err := iter.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "query membership")
	}
	return true, nil
}

// AddMembership creates a membership record with a generated id and a server-assigned join time.
func (qs *QueueStorage) AddMembership(ctx context.Context, entry collections.QueueEntry) (string, error) {
	docRef := qs.queue.NewDoc()
	// A zero JoinedAt is replaced with the commit time (serverTimestamp tag).
	entry.JoinedAt = time.Time{}
	if _, err := docRef.Create(ctx, entry); err != nil {
		return "", errors.Wrap(err, "create membership")
	}
	return docRef.ID, nil
}

// DeleteMembership deletes the membership record id.
func (qs *QueueStorage) DeleteMembership(ctx context.Context, id string) error {
	_, err := qs.queue.Doc(id).Delete(ctx)
	return errors.Wrapf(err, "delete membership %s", id)
}

// WatchQueue listens to the whole queue collection ordered by join time and calls fn with every
// snapshot. It blocks until ctx is done (returning nil) or the listener fails.
func (qs *QueueStorage) WatchQueue(ctx context.Context, fn func([]collections.QueueEntry)) error {
	iter := qs.queue.OrderBy(collections.JoinedAtKey, firestore.Asc).Snapshots(ctx)
	defer iter.Stop()
	for {
		snapshot, err := iter.Next()
		if err == iterator.Done || ctx.Err() != nil || status.Code(err) == codes.Canceled {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "listen to queue")
		}
		docs, err := snapshot.Documents.GetAll()
		if err != nil {
			return errors.Wrap(err, "read queue snapshot")
		}
		fn(decodeQueue(docs))
	}
}

func decodeQueue(docs []*firestore.DocumentSnapshot) []collections.QueueEntry {
	entries := make([]collections.QueueEntry, 0, len(docs))
	for _, doc := range docs {
		entry := collections.QueueEntry{}
		if err := doc.DataTo(&entry); err != nil {
			log.Printf("Error while decoding queue record %s: %s", doc.Ref.ID, err.Error())
			continue
		}
		entry.ID = doc.Ref.ID
		entries = append(entries, entry)
	}
	return entries
}
