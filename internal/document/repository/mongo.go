package repository

import (
	"context"
	"time"

	"github.com/mapster/mapster/backend/go-services/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements DocumentRepository on a MongoDB collection.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	return &MongoRepo{col: col}
}

func (m *MongoRepo) Create(ctx context.Context, d *document.Document) error {
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	_, err := m.col.InsertOne(ctx, d)
	return err
}

func (m *MongoRepo) Get(ctx context.Context, id primitive.ObjectID) (*document.Document, error) {
	var d document.Document
	if err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*document.Document, error) {
	cur, err := m.col.Find(ctx, bson.M{"userId": userID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []*document.Document{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoRepo) UpdateTitle(ctx context.Context, id primitive.ObjectID, title string) (*document.Document, error) {
	var d document.Document
	err := m.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"title": title, "updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MongoShapeRepo implements ShapeRepository on a MongoDB collection.
type MongoShapeRepo struct {
	col *mongo.Collection
}

func NewMongoShapeRepo(col *mongo.Collection) *MongoShapeRepo {
	return &MongoShapeRepo{col: col}
}

func (m *MongoShapeRepo) Create(ctx context.Context, s *document.Shape) error {
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	_, err := m.col.InsertOne(ctx, s)
	return err
}

func (m *MongoShapeRepo) ListByDoc(ctx context.Context, docID primitive.ObjectID) ([]*document.Shape, error) {
	cur, err := m.col.Find(ctx, bson.M{"docId": docID}, options.Find().SetSort(bson.D{{Key: "index", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []*document.Shape{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoShapeRepo) Update(ctx context.Context, docID, id primitive.ObjectID, p document.ShapePatch) (*document.Shape, error) {
	set := bson.M{}
	if p.Index != nil {
		set["index"] = *p.Index
	}
	if p.Type != nil {
		set["type"] = *p.Type
	}
	if p.Label != nil {
		set["label"] = *p.Label
	}
	if p.TranslateX != nil {
		set["translateX"] = *p.TranslateX
	}
	if p.TranslateY != nil {
		set["translateY"] = *p.TranslateY
	}
	if p.BackgroundColor != nil {
		set["backgroundColor"] = *p.BackgroundColor
	}
	if p.TextColor != nil {
		set["textColor"] = *p.TextColor
	}
	if p.BorderColor != nil {
		set["borderColor"] = *p.BorderColor
	}
	filter := bson.M{"_id": id, "docId": docID}
	var s document.Shape
	var err error
	if len(set) == 0 {
		err = m.col.FindOne(ctx, filter).Decode(&s)
	} else {
		err = m.col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&s)
	}
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (m *MongoShapeRepo) Delete(ctx context.Context, docID, id primitive.ObjectID) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id, "docId": docID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoShapeRepo) DeleteByDocs(ctx context.Context, docIDs []primitive.ObjectID) (int64, error) {
	if len(docIDs) == 0 {
		return 0, nil
	}
	res, err := m.col.DeleteMany(ctx, bson.M{"docId": bson.M{"$in": docIDs}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
