package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rohits-web03/todo-api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	todoCollection = "todos"
	userCollection = "users"
)

// ConnectMongo dials uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

// EnsureMongoIndexes creates the unique, lookup and text indexes.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	todoIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "title", Value: "text"}, {Key: "description", Value: "text"}}},
		{Keys: bson.D{{Key: "completed", Value: 1}, {Key: "priority", Value: -1}}},
		{Keys: bson.D{{Key: "dueDate", Value: 1}}},
		{Keys: bson.D{{Key: "createdBy", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
	}
	if _, err := db.Collection(todoCollection).Indexes().CreateMany(ctx, todoIndexes); err != nil {
		return fmt.Errorf("failed to create todo indexes: %w", err)
	}

	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_1")},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName("username_1")},
		{Keys: bson.D{{Key: "isActive", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "emailVerificationToken", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
	if _, err := db.Collection(userCollection).Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

// mongoNow truncates to the millisecond precision BSON dates store.
func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func mongoSort(sort Sort, allowed map[string]string) bson.D {
	field := sort.Field
	if _, ok := allowed[field]; !ok {
		field, sort.Desc = "createdAt", true
	}
	dir := 1
	if sort.Desc {
		dir = -1
	}
	return bson.D{{Key: field, Value: dir}}
}

// duplicateField names the unique index a write collided with.
func duplicateField(err error, fields ...string) string {
	msg := err.Error()
	for _, f := range fields {
		if strings.Contains(msg, f+"_1") {
			return f
		}
	}
	if len(fields) > 0 {
		return fields[0]
	}
	return ""
}

type todoDocument struct {
	ID          string     `bson:"_id"`
	Title       string     `bson:"title"`
	Description string     `bson:"description,omitempty"`
	Completed   bool       `bson:"completed"`
	Priority    string     `bson:"priority"`
	Category    string     `bson:"category,omitempty"`
	DueDate     *time.Time `bson:"dueDate,omitempty"`
	Tags        []string   `bson:"tags"`
	CreatedBy   string     `bson:"createdBy,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
}

func (d *todoDocument) fromModel(t *models.Todo) {
	d.ID = t.ID.String()
	d.Title = t.Title
	d.Description = t.Description
	d.Completed = t.Completed
	d.Priority = string(t.Priority)
	d.Category = t.Category
	d.DueDate = t.DueDate
	d.Tags = append([]string{}, t.Tags...)
	if t.CreatedBy != nil {
		d.CreatedBy = t.CreatedBy.String()
	}
	d.CreatedAt = t.CreatedAt
	d.UpdatedAt = t.UpdatedAt
}

func (d *todoDocument) toModel() (*models.Todo, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid todo id %q: %w", d.ID, err)
	}
	t := &models.Todo{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		Priority:    models.Priority(d.Priority),
		Category:    d.Category,
		DueDate:     d.DueDate,
		Tags:        append(pq.StringArray{}, d.Tags...),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.CreatedBy != "" {
		owner, err := uuid.Parse(d.CreatedBy)
		if err != nil {
			return nil, fmt.Errorf("invalid todo owner %q: %w", d.CreatedBy, err)
		}
		t.CreatedBy = &owner
	}
	return t, nil
}

type MongoTodoRepo struct {
	coll *mongo.Collection
}

func NewMongoTodoRepo(db *mongo.Database) *MongoTodoRepo {
	return &MongoTodoRepo{coll: db.Collection(todoCollection)}
}

func (r *MongoTodoRepo) Insert(ctx context.Context, todo *models.Todo) error {
	if todo.ID == uuid.Nil {
		todo.ID = uuid.New()
	}
	now := mongoNow()
	todo.CreatedAt, todo.UpdatedAt = now, now

	var doc todoDocument
	doc.fromModel(todo)
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert todo: %w", err)
	}
	return nil
}

func (r *MongoTodoRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Todo, error) {
	var doc todoDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find todo: %w", err)
	}
	return doc.toModel()
}

func (r *MongoTodoRepo) Find(ctx context.Context, filter TodoFilter, sort Sort) ([]models.Todo, error) {
	cur, err := r.coll.Find(ctx, todoQuery(filter), options.Find().SetSort(mongoSort(sort, todoSortFields)))
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	var docs []todoDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode todos: %w", err)
	}
	todos := make([]models.Todo, 0, len(docs))
	for i := range docs {
		t, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		todos = append(todos, *t)
	}
	return todos, nil
}

func (r *MongoTodoRepo) UpdateByID(ctx context.Context, id uuid.UUID, c models.TodoChanges) (*models.Todo, error) {
	set := bson.M{"updatedAt": mongoNow()}
	unset := bson.M{}
	if c.Title != nil {
		set["title"] = *c.Title
	}
	if c.Description != nil {
		set["description"] = *c.Description
	}
	if c.Completed != nil {
		set["completed"] = *c.Completed
	}
	if c.Priority != nil {
		set["priority"] = string(*c.Priority)
	}
	if c.Category != nil {
		set["category"] = *c.Category
	}
	if c.ClearDueDate {
		unset["dueDate"] = ""
	} else if c.DueDate != nil {
		set["dueDate"] = *c.DueDate
	}
	if c.Tags != nil {
		set["tags"] = []string(*c.Tags)
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var doc todoDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}
	return doc.toModel()
}

// ToggleCompleted uses a pipeline update so the flip reads the stored value.
func (r *MongoTodoRepo) ToggleCompleted(ctx context.Context, id uuid.UUID) (*models.Todo, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "completed", Value: bson.D{{Key: "$not", Value: bson.A{"$completed"}}}},
			{Key: "updatedAt", Value: mongoNow()},
		}}},
	}

	var doc todoDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to toggle todo: %w", err)
	}
	return doc.toModel()
}

func (r *MongoTodoRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoTodoRepo) Count(ctx context.Context, filter TodoFilter) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, todoQuery(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count todos: %w", err)
	}
	return n, nil
}

func todoQuery(f TodoFilter) bson.M {
	q := bson.M{}
	if f.Completed != nil {
		q["completed"] = *f.Completed
	}
	if f.Priority != nil {
		q["priority"] = string(*f.Priority)
	}
	if f.Category != "" {
		q["category"] = f.Category
	}
	if f.Tag != "" {
		q["tags"] = f.Tag
	}
	if f.CreatedBy != nil {
		q["createdBy"] = f.CreatedBy.String()
	}
	if f.DueFrom != nil || f.DueTo != nil {
		due := bson.M{}
		if f.DueFrom != nil {
			due["$gte"] = *f.DueFrom
		}
		if f.DueTo != nil {
			due["$lte"] = *f.DueTo
		}
		q["dueDate"] = due
	}
	if f.Search != "" {
		q["$text"] = bson.M{"$search": f.Search}
	}
	return q
}

type userDocument struct {
	ID                     string             `bson:"_id"`
	Username               string             `bson:"username"`
	Email                  string             `bson:"email"`
	Password               string             `bson:"password,omitempty"`
	Name                   string             `bson:"name,omitempty"`
	ProfileImage           *string            `bson:"profileImage"`
	IsActive               bool               `bson:"isActive"`
	IsEmailVerified        bool               `bson:"isEmailVerified"`
	EmailVerificationToken string             `bson:"emailVerificationToken,omitempty"`
	PasswordResetToken     string             `bson:"passwordResetToken,omitempty"`
	PasswordResetExpires   *time.Time         `bson:"passwordResetExpires,omitempty"`
	LastLogin              *time.Time         `bson:"lastLogin"`
	Preferences            models.Preferences `bson:"preferences"`
	CreatedAt              time.Time          `bson:"createdAt"`
	UpdatedAt              time.Time          `bson:"updatedAt"`
}

func (d *userDocument) fromModel(u *models.User) {
	*d = userDocument{
		ID:                     u.ID.String(),
		Username:               u.Username,
		Email:                  u.Email,
		Password:               u.Password,
		Name:                   u.Name,
		ProfileImage:           u.ProfileImage,
		IsActive:               u.IsActive,
		IsEmailVerified:        u.IsEmailVerified,
		EmailVerificationToken: u.EmailVerificationToken,
		PasswordResetToken:     u.PasswordResetToken,
		PasswordResetExpires:   u.PasswordResetExpires,
		LastLogin:              u.LastLogin,
		Preferences:            u.Preferences,
		CreatedAt:              u.CreatedAt,
		UpdatedAt:              u.UpdatedAt,
	}
}

func (d *userDocument) toModel() (*models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", d.ID, err)
	}
	return &models.User{
		ID:                     id,
		Username:               d.Username,
		Email:                  d.Email,
		Password:               d.Password,
		Name:                   d.Name,
		ProfileImage:           d.ProfileImage,
		IsActive:               d.IsActive,
		IsEmailVerified:        d.IsEmailVerified,
		EmailVerificationToken: d.EmailVerificationToken,
		PasswordResetToken:     d.PasswordResetToken,
		PasswordResetExpires:   d.PasswordResetExpires,
		LastLogin:              d.LastLogin,
		Preferences:            d.Preferences,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}, nil
}

// secretProjection hides the fields excluded from default reads.
var secretProjection = bson.M{
	"password":               0,
	"emailVerificationToken": 0,
	"passwordResetToken":     0,
	"passwordResetExpires":   0,
}

type MongoUserRepo struct {
	coll *mongo.Collection
}

func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection(userCollection)}
}

func (r *MongoUserRepo) Insert(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := mongoNow()
	user.CreatedAt, user.UpdatedAt = now, now

	var doc userDocument
	doc.fromModel(user)
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &models.ConflictError{Field: duplicateField(err, "email", "username")}
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *MongoUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.FindOne(ctx, UserFilter{ID: &id})
}

func (r *MongoUserRepo) FindOne(ctx context.Context, filter UserFilter) (*models.User, error) {
	opts := options.FindOne()
	if !filter.IncludeSecrets {
		opts.SetProjection(secretProjection)
	}
	var doc userDocument
	if err := r.coll.FindOne(ctx, userQuery(filter), opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return doc.toModel()
}

func (r *MongoUserRepo) Find(ctx context.Context, filter UserFilter, sort Sort) ([]models.User, error) {
	opts := options.Find().SetSort(mongoSort(sort, userSortFields))
	if !filter.IncludeSecrets {
		opts.SetProjection(secretProjection)
	}
	cur, err := r.coll.Find(ctx, userQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	users := make([]models.User, 0, len(docs))
	for i := range docs {
		u, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

func (r *MongoUserRepo) UpdateByID(ctx context.Context, id uuid.UUID, c models.UserChanges) (*models.User, error) {
	set := bson.M{"updatedAt": mongoNow()}
	unset := bson.M{}
	if c.Name != nil {
		set["name"] = *c.Name
	}
	if c.ClearProfileImage {
		set["profileImage"] = nil
	} else if c.ProfileImage != nil {
		set["profileImage"] = *c.ProfileImage
	}
	if c.Preferences != nil {
		set["preferences"] = *c.Preferences
	}
	if c.IsActive != nil {
		set["isActive"] = *c.IsActive
	}
	if c.IsEmailVerified != nil {
		set["isEmailVerified"] = *c.IsEmailVerified
	}
	if c.EmailVerificationToken != nil {
		if *c.EmailVerificationToken == "" {
			unset["emailVerificationToken"] = ""
		} else {
			set["emailVerificationToken"] = *c.EmailVerificationToken
		}
	}
	if c.PasswordHash != nil {
		set["password"] = *c.PasswordHash
		unset["passwordResetToken"] = ""
		unset["passwordResetExpires"] = ""
	}
	if c.LastLogin != nil {
		set["lastLogin"] = *c.LastLogin
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var doc userDocument
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(secretProjection)
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return doc.toModel()
}

func (r *MongoUserRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserRepo) Count(ctx context.Context, filter UserFilter) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, userQuery(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func userQuery(f UserFilter) bson.M {
	q := bson.M{}
	if f.ID != nil {
		q["_id"] = f.ID.String()
	}
	if f.Email != "" {
		q["email"] = models.NormalizeEmail(f.Email)
	}
	if f.Username != "" {
		q["username"] = f.Username
	}
	if f.IsActive != nil {
		q["isActive"] = *f.IsActive
	}
	if f.EmailVerificationToken != "" {
		q["emailVerificationToken"] = f.EmailVerificationToken
	}
	return q
}
