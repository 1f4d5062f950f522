package gql

import (
	"testing"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/mnohosten/diodb/pkg/diodb"
)

func openTestDB(t *testing.T) *diodb.DB {
	t.Helper()
	db, err := diodb.Open(diodb.Config{
		DBDirectory:          t.TempDir(),
		BackgroundTaskMinGap: time.Millisecond,
		NumWorkerThreads:     1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutThenGetRoundTrips(t *testing.T) {
	db := openTestDB(t)
	schema, err := Schema(db)
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}

	putResult := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `mutation { put(key: "greeting", value: "d29ybGQ=") }`,
	})
	if len(putResult.Errors) > 0 {
		t.Fatalf("put errors: %v", putResult.Errors)
	}

	getResult := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `query { get(key: "greeting") { value exists } }`,
	})
	if len(getResult.Errors) > 0 {
		t.Fatalf("get errors: %v", getResult.Errors)
	}

	data := getResult.Data.(map[string]interface{})["get"].(map[string]interface{})
	if data["exists"] != true {
		t.Fatalf("exists = %v, want true", data["exists"])
	}
	if data["value"] != "d29ybGQ=" {
		t.Fatalf("value = %v, want d29ybGQ=", data["value"])
	}
}

func TestGetMissingKeyReportsNotExists(t *testing.T) {
	db := openTestDB(t)
	schema, err := Schema(db)
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}

	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `query { get(key: "absent") { exists value } }`,
	})
	if len(result.Errors) > 0 {
		t.Fatalf("errors: %v", result.Errors)
	}
	data := result.Data.(map[string]interface{})["get"].(map[string]interface{})
	if data["exists"] != false {
		t.Fatalf("exists = %v, want false", data["exists"])
	}
	if data["value"] != nil {
		t.Fatalf("value = %v, want nil", data["value"])
	}
}
