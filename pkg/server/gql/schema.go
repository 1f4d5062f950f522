// Package gql mounts a small GraphQL API over diodb.DB, for embedders
// who'd rather query/mutate through a single typed endpoint than the
// REST surface.
package gql

import (
	"encoding/base64"

	"github.com/graphql-go/graphql"

	"github.com/mnohosten/diodb/pkg/diodb"
)

// Schema builds the GraphQL schema for db: a get query returning an Entry
// (key, exists, value) and a put/erase mutation pair, all operating on
// base64-encoded values so arbitrary binary payloads round-trip through
// JSON cleanly.
func Schema(db *diodb.DB) (graphql.Schema, error) {
	entryType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Entry",
		Description: "A key and its base64-encoded value",
		Fields: graphql.Fields{
			"key": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.String),
				Description: "The lookup key",
			},
			"value": &graphql.Field{
				Type:        graphql.String,
				Description: "Base64-encoded value, absent if the key was not found",
			},
			"exists": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Boolean),
				Description: "Whether the key is present and not tombstoned",
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"get": &graphql.Field{
				Type: entryType,
				Args: graphql.FieldConfigArgument{
					"key": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					key := p.Args["key"].(string)
					present, err := db.Exists([]byte(key))
					if err != nil {
						return nil, err
					}
					if !present {
						return map[string]interface{}{"key": key, "exists": false}, nil
					}
					value, err := db.Get([]byte(key))
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{
						"key":    key,
						"exists": true,
						"value":  base64.StdEncoding.EncodeToString(value),
					}, nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"put": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Args: graphql.FieldConfigArgument{
					"key":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"value": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					key := p.Args["key"].(string)
					encoded := p.Args["value"].(string)
					value, err := base64.StdEncoding.DecodeString(encoded)
					if err != nil {
						return nil, err
					}
					db.Put([]byte(key), value)
					return true, nil
				},
			},
			"erase": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Args: graphql.FieldConfigArgument{
					"key": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					key := p.Args["key"].(string)
					db.Erase([]byte(key))
					return true, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}
