package mongodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMongoURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{"mongodb scheme", "mongodb://localhost:27017", false},
		{"srv scheme", "mongodb+srv://cluster.mongodb.net", false},
		{"with credentials and options", "mongodb://u:p@db-0:27017/?replicaSet=rs0", false},
		{"empty", "", true},
		{"http scheme", "http://localhost:27017", true},
		{"postgres scheme", "postgres://localhost:5432", true},
		{"missing host", "mongodb://", true},
		{"not a uri", "not-a-valid-uri", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateMongoURI(tt.uri)
			assert.Equal(t, tt.wantErr, err != nil, "validateMongoURI(%q) = %v", tt.uri, err)
		})
	}
}

func TestValidateDatabaseName(t *testing.T) {
	tests := []struct {
		name    string
		db      string
		wantErr bool
	}{
		{"plain", "hotel_notifications", false},
		{"empty", "", true},
		{"slash", "hotel/db", true},
		{"backslash", "hotel\\db", true},
		{"dot", "hotel.db", true},
		{"dollar", "hotel$db", true},
		{"space", "hotel db", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDatabaseName(tt.db)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestNewMongoClient_RejectsBadInputBeforeDialing(t *testing.T) {
	_, err := NewMongoClient("http://localhost:27017", "hotel")
	assert.Error(t, err)

	_, err = NewMongoClient("mongodb://localhost:27017", "bad.name")
	assert.Error(t, err)
}
