package accounts

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func TestPatchUpdate_SetAndUnset(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := now.Add(24 * time.Hour)
	name, pending, empty := "Jane", "new@x.com", ""
	verified := false

	got := patchUpdate(models.AccountPatch{
		FullName:                    &name,
		IsVerified:                  &verified,
		PendingEmail:                &pending,
		VerificationToken:           &empty,
		VerificationTokenExpiresAt:  &time.Time{},
		ResetPasswordTokenExpiresAt: &exp,
	}, now)

	assert.Equal(t, bson.M{
		"full_name":                       "Jane",
		"is_verified":                     false,
		"pending_email":                   "new@x.com",
		"reset_password_token_expires_at": exp,
		"updated_at":                      now,
	}, got["$set"])
	assert.Equal(t, bson.M{
		"verification_token":            "",
		"verification_token_expires_at": "",
	}, got["$unset"])
}

func TestPatchUpdate_NoUnsetWhenNothingCleared(t *testing.T) {
	name := "Jane"
	got := patchUpdate(models.AccountPatch{FullName: &name}, time.Now())
	_, ok := got["$unset"]
	assert.False(t, ok)
}

func TestLiveCodeFilter(t *testing.T) {
	now := time.Now()
	assert.Equal(t, bson.M{
		"reset_password_token":            "abc",
		"reset_password_token_expires_at": bson.M{"$gt": now},
	}, liveCodeFilter("reset_password_token", "abc", now))
}

func TestVerifyPipeline_PromotesPendingEmail(t *testing.T) {
	p := verifyPipeline(time.Now())
	require.Len(t, p, 2)

	set := p[0][0]
	assert.Equal(t, "$set", set.Key)
	fields := set.Value.(bson.D)
	assert.Equal(t, "email", fields[1].Key)
	assert.Equal(t, bson.D{{Key: "$ifNull", Value: bson.A{"$pending_email", "$email"}}}, fields[1].Value)

	assert.Equal(t, "$unset", p[1][0].Key)
}

func TestIndexModels(t *testing.T) {
	idx := indexModels()
	require.Len(t, idx, 4)
	assert.Equal(t, bson.D{{Key: "email", Value: 1}}, idx[0].Keys)
	assert.Equal(t, bson.D{{Key: "reset_password_token", Value: 1}}, idx[3].Keys)
}

func TestMapMongoError(t *testing.T) {
	assert.ErrorIs(t, mapMongoError(mongo.ErrNoDocuments), common.ErrNotFound)

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.ErrorIs(t, mapMongoError(dup), common.ErrConflict)

	err := mapMongoError(errors.New("socket closed"))
	assert.ErrorContains(t, err, "db error: socket closed")
}
