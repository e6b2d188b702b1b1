package repository

import (
	"context"
	"time"

	"github.com/docvault/docvault/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Repository on three collections: documents, revisions
// and attachments.
type MongoRepo struct {
	documents   *mongo.Collection
	revisions   *mongo.Collection
	attachments *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	r := &MongoRepo{
		documents:   db.Collection("documents"),
		revisions:   db.Collection("revisions"),
		attachments: db.Collection("attachments"),
	}
	// lookup indexes; idempotent
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.documents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true),
	})
	r.revisions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	r.attachments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	return r
}

func (r *MongoRepo) CreateDocument(ctx context.Context, d *document.Document) (string, error) {
	if d.ID == "" {
		d.ID = newID()
	}
	if d.Slug == "" {
		d.Slug = Slugify(d.Title)
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	if _, err := r.documents.InsertOne(ctx, d); err != nil {
		return "", err
	}
	return d.ID, nil
}

func (r *MongoRepo) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	if err := r.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *MongoRepo) GetDocumentBySlug(ctx context.Context, slug string) (*document.Document, error) {
	var d document.Document
	if err := r.documents.FindOne(ctx, bson.M{"slug": slug}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *MongoRepo) UpdateDocument(ctx context.Context, d *document.Document) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := r.documents.ReplaceOne(ctx, bson.M{"_id": d.ID}, d)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepo) TrashDocument(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := r.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":    document.StatusTrash,
		"trashedAt": now,
		"updatedAt": now,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepo) DeleteDocument(ctx context.Context, id string) error {
	res, err := r.documents.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	r.revisions.DeleteMany(ctx, bson.M{"documentId": id})
	r.attachments.DeleteMany(ctx, bson.M{"documentId": id})
	return nil
}

func (r *MongoRepo) ListDocuments(ctx context.Context, q ListQuery) ([]*document.Document, error) {
	filter := bson.M{}
	if len(q.Statuses) > 0 {
		filter["status"] = bson.M{"$in": q.Statuses}
	} else {
		filter["status"] = bson.M{"$ne": document.StatusTrash}
	}
	if q.OwnerID != "" {
		filter["ownerId"] = q.OwnerID
	}
	if q.ReadableBy != "" {
		filter["$or"] = bson.A{
			bson.M{"ownerId": q.ReadableBy},
			bson.M{"status": document.StatusPublic},
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	cur, err := r.documents.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

func (r *MongoRepo) CreateAttachment(ctx context.Context, a *document.Attachment) (string, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	a.CreatedAt = time.Now().UTC()
	if _, err := r.attachments.InsertOne(ctx, a); err != nil {
		return "", err
	}
	return a.ID, nil
}

func (r *MongoRepo) GetAttachment(ctx context.Context, id string) (*document.Attachment, error) {
	var a document.Attachment
	if err := r.attachments.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *MongoRepo) AttachmentsByDocument(ctx context.Context, documentID string) ([]*document.Attachment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.attachments.Find(ctx, bson.M{"documentId": documentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*document.Attachment{}
	for cur.Next(ctx) {
		var a document.Attachment
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, cur.Err()
}

func (r *MongoRepo) CreateRevision(ctx context.Context, rev *document.Revision) (string, error) {
	if rev.ID == "" {
		rev.ID = newID()
	}
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now().UTC()
	}
	if _, err := r.revisions.InsertOne(ctx, rev); err != nil {
		return "", err
	}
	return rev.ID, nil
}

func (r *MongoRepo) GetRevision(ctx context.Context, id string) (*document.Revision, error) {
	var rev document.Revision
	if err := r.revisions.FindOne(ctx, bson.M{"_id": id}).Decode(&rev); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rev, nil
}

func (r *MongoRepo) RevisionsByDocument(ctx context.Context, documentID string, ascending bool) ([]*document.Revision, error) {
	order := 1
	if !ascending {
		order = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: order}})
	cur, err := r.revisions.Find(ctx, bson.M{"documentId": documentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*document.Revision{}
	for cur.Next(ctx) {
		var rev document.Revision
		if err := cur.Decode(&rev); err != nil {
			return nil, err
		}
		out = append(out, &rev)
	}
	return out, cur.Err()
}

func (r *MongoRepo) DeleteRevision(ctx context.Context, id string) error {
	res, err := r.revisions.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
