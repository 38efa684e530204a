package auth

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Directory answers whether a principal exists, for recipient validation and admin fan-out.
type Directory interface {
	Exists(ctx context.Context, p Principal) (bool, error)
	ActiveIDs(ctx context.Context, role Role) ([]string, error)
}

// MongoDirectory reads the students and admins collections owned by the profile subsystem.
type MongoDirectory struct {
	students *mongo.Collection
	admins   *mongo.Collection
}

func NewMongoDirectory(db *mongo.Database) *MongoDirectory {
	return &MongoDirectory{
		students: db.Collection("students"),
		admins:   db.Collection("admins"),
	}
}

func (d *MongoDirectory) collection(role Role) *mongo.Collection {
	if role == RoleAdmin {
		return d.admins
	}
	return d.students
}

// idValue matches both ObjectID and plain string primary keys.
func idValue(id string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func (d *MongoDirectory) Exists(ctx context.Context, p Principal) (bool, error) {
	if p.ID == "" || !p.Role.Valid() {
		return false, nil
	}
	n, err := d.collection(p.Role).CountDocuments(ctx, bson.M{"_id": idValue(p.ID)}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrapf(err, "lookup %s %s", p.Role, p.ID)
	}
	return n > 0, nil
}

func (d *MongoDirectory) ActiveIDs(ctx context.Context, role Role) ([]string, error) {
	filter := bson.M{"active": true}
	if role == RoleAdmin {
		filter = bson.M{"isActive": true}
	}
	cursor, err := d.collection(role).Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, errors.Wrapf(err, "list active %s", role)
	}
	var rows []struct {
		ID interface{} `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, errors.Wrapf(err, "decode active %s", role)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		switch v := row.ID.(type) {
		case primitive.ObjectID:
			ids = append(ids, v.Hex())
		case string:
			ids = append(ids, v)
		}
	}
	return ids, nil
}

// StaticDirectory is an in-process directory used by the memory backend and tests.
// An open directory accepts any non-empty id of a valid role.
type StaticDirectory struct {
	mu     sync.RWMutex
	open   bool
	active map[Role][]string
	known  map[Principal]bool
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{active: map[Role][]string{}, known: map[Principal]bool{}}
}

func NewOpenDirectory() *StaticDirectory {
	d := NewStaticDirectory()
	d.open = true
	return d
}

func (d *StaticDirectory) Add(p Principal, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.known[p] = true
	if active {
		d.active[p.Role] = append(d.active[p.Role], p.ID)
	}
}

func (d *StaticDirectory) Exists(_ context.Context, p Principal) (bool, error) {
	if p.ID == "" || !p.Role.Valid() {
		return false, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.open || d.known[p], nil
}

func (d *StaticDirectory) ActiveIDs(_ context.Context, role Role) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.active[role]...), nil
}
