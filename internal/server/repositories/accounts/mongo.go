package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionName is the MongoDB collection holding accounts.
const CollectionName = "accounts"

// MongoRepository stores accounts as documents. Every token transition is
// a single findOneAndUpdate with the expected state in the filter.
type MongoRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(CollectionName), now: time.Now}
}

// EnsureIndexes creates the unique indexes backing email, username and
// one-time code uniqueness.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, indexModels())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func indexModels() []mongo.IndexModel {
	partial := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys: bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{field: bson.M{"$type": "string"}}),
		}
	}
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		partial("verification_token"),
		partial("reset_password_token"),
	}
}

func mapMongoError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return common.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", common.ErrConflict, err)
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*models.Account, error) {
	var a models.Account
	if err := r.coll.FindOne(ctx, filter).Decode(&a); err != nil {
		return nil, mapMongoError(err)
	}
	return &a, nil
}

func (r *MongoRepository) findOneAndUpdate(ctx context.Context, filter bson.M, update any) (*models.Account, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var a models.Account
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&a); err != nil {
		return nil, mapMongoError(err)
	}
	return &a, nil
}

func (r *MongoRepository) Insert(ctx context.Context, a *models.Account) (*models.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := r.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	if _, err := r.coll.InsertOne(ctx, a); err != nil {
		return nil, mapMongoError(err)
	}
	return a, nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoRepository) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *MongoRepository) FindByVerificationToken(ctx context.Context, code string, now time.Time) (*models.Account, error) {
	return r.findOne(ctx, liveCodeFilter("verification_token", code, now))
}

func (r *MongoRepository) FindByResetToken(ctx context.Context, code string, now time.Time) (*models.Account, error) {
	return r.findOne(ctx, liveCodeFilter("reset_password_token", code, now))
}

func liveCodeFilter(field, code string, now time.Time) bson.M {
	return bson.M{field: code, field + "_expires_at": bson.M{"$gt": now}}
}

func (r *MongoRepository) UpdateFields(ctx context.Context, id string, patch models.AccountPatch) (*models.Account, error) {
	if patch.Empty() {
		return r.FindByID(ctx, id)
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, patchUpdate(patch, r.now().UTC()))
}

// patchUpdate renders patch as $set / $unset. Empty values of optional
// fields are unset so the partial indexes ignore them.
func patchUpdate(p models.AccountPatch, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	unset := bson.M{}

	str := func(field string, v *string, optional bool) {
		if v == nil {
			return
		}
		if optional && *v == "" {
			unset[field] = ""
			return
		}
		set[field] = *v
	}
	tm := func(field string, v *time.Time) {
		if v == nil {
			return
		}
		if v.IsZero() {
			unset[field] = ""
			return
		}
		set[field] = *v
	}

	str("full_name", p.FullName, false)
	str("username", p.Username, false)
	str("email", p.Email, false)
	str("phone", p.Phone, false)
	str("company_name", p.CompanyName, false)
	str("description", p.Description, true)
	str("avatar_url", p.AvatarURL, false)
	if p.IsVerified != nil {
		set["is_verified"] = *p.IsVerified
	}
	str("pending_email", p.PendingEmail, true)
	str("password_hash", p.PasswordHash, false)
	str("verification_token", p.VerificationToken, true)
	tm("verification_token_expires_at", p.VerificationTokenExpiresAt)
	str("reset_password_token", p.ResetPasswordToken, true)
	tm("reset_password_token_expires_at", p.ResetPasswordTokenExpiresAt)

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (r *MongoRepository) ConsumeVerificationToken(ctx context.Context, code string, now time.Time, requirePending bool) (*models.Account, error) {
	filter := liveCodeFilter("verification_token", code, now)
	if requirePending {
		filter["pending_email"] = bson.M{"$type": "string"}
	}
	return r.findOneAndUpdate(ctx, filter, verifyPipeline(r.now().UTC()))
}

// verifyPipeline promotes pending_email into email inside the same update.
func verifyPipeline(now time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "is_verified", Value: true},
			{Key: "email", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$pending_email", "$email"}}}},
			{Key: "updated_at", Value: now},
		}}},
		{{Key: "$unset", Value: bson.A{"pending_email", "verification_token", "verification_token_expires_at"}}},
	}
}

func (r *MongoRepository) ConsumeResetToken(ctx context.Context, code, passwordHash string, now time.Time) (*models.Account, error) {
	update := bson.M{
		"$set":   bson.M{"password_hash": passwordHash, "updated_at": r.now().UTC()},
		"$unset": bson.M{"reset_password_token": "", "reset_password_token_expires_at": ""},
	}
	return r.findOneAndUpdate(ctx, liveCodeFilter("reset_password_token", code, now), update)
}

func (r *MongoRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"verification_token": code},
		bson.M{"reset_password_token": code},
	}}
	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *MongoRepository) SetRefreshToken(ctx context.Context, id, hash string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"refresh_token_hash": hash, "updated_at": r.now().UTC()}})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *MongoRepository) RotateRefreshToken(ctx context.Context, id, expected, next string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "refresh_token_hash": expected},
		bson.M{"$set": bson.M{"refresh_token_hash": next, "updated_at": r.now().UTC()}})
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *MongoRepository) ClearRefreshToken(ctx context.Context, id string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$unset": bson.M{"refresh_token_hash": ""}, "$set": bson.M{"updated_at": r.now().UTC()}})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *MongoRepository) ListOthers(ctx context.Context, id string) ([]models.Account, error) {
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$ne": id}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	var out []models.Account
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
