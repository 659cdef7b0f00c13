package docstore

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMongoDocumentRoundTrip(t *testing.T) {
	doc, err := jsonToBSON([]byte(`{"name":"City Pharmacy","isAvailable":true,"city":"Pune"}`))
	require.NoError(t, err)
	assert.Equal(t, "City Pharmacy", doc["name"])
	assert.Equal(t, true, doc["isAvailable"])

	doc["_id"] = "ph-1"
	body, err := bsonToJSON(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "_id")
	assert.JSONEq(t, `{"name":"City Pharmacy","isAvailable":true,"city":"Pune"}`, string(body))
}

func TestMongoDocumentRejectsInvalidJSON(t *testing.T) {
	_, err := jsonToBSON([]byte(`{"name":`))
	assert.Error(t, err)
}

func TestMongoInsertErrorMapsDuplicateKeys(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.ErrorIs(t, mongoInsertError(dup, "prescriptions", "rx-1"), ErrConflict)

	bulkDup := mongo.BulkWriteException{WriteErrors: []mongo.BulkWriteError{{WriteError: mongo.WriteError{Code: 11000}}}}
	assert.ErrorIs(t, mongoInsertError(bulkDup, mongoClaimsCollection, "rx-1"), ErrConflict)

	assert.ErrorIs(t, mongoInsertError(ErrConflict, mongoClaimsCollection, "rx-1"), ErrConflict)
	assert.NoError(t, mongoInsertError(nil, "prescriptions", "rx-1"))

	other := mongoInsertError(errors.New("no reachable servers"), "prescriptions", "rx-1")
	assert.NotErrorIs(t, other, ErrConflict)
	assert.Contains(t, other.Error(), "prescriptions/rx-1")
}
