package validators

import "go.mongodb.org/mongo-driver/bson"

var TravelerValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "name", "clearance", "revision"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":  bson.M{"bsonType": "string", "minLength": 1, "maxLength": 64},
			"name": bson.M{"bsonType": "string", "minLength": 1, "maxLength": 100},
			"clearance": bson.M{
				"bsonType": "object",
				"required": []string{"status"},
				"properties": bson.M{
					"status": bson.M{"enum": []string{"none", "pending", "cleared", "expired"}},
				},
			},
			"completed_training": bson.M{
				"bsonType": []string{"array", "null"},
				"items":    bson.M{"bsonType": "string"},
			},
			"revision": bson.M{"bsonType": []string{"int", "long"}, "minimum": 1},
		},
	},
}

var CourseValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "name", "departure_at", "capacity", "price", "currency"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":          bson.M{"bsonType": "string", "minLength": 1, "maxLength": 64},
			"name":         bson.M{"bsonType": "string", "minLength": 2, "maxLength": 100},
			"departure_at": bson.M{"bsonType": "date"},
			"capacity":     bson.M{"bsonType": []string{"int", "long"}, "minimum": 0},
			"prerequisites": bson.M{
				"bsonType": []string{"array", "null"},
				"items":    bson.M{"bsonType": "string"},
			},
			"price":    bson.M{"bsonType": []string{"int", "long"}, "minimum": 0},
			"currency": bson.M{"bsonType": "string", "minLength": 3, "maxLength": 3},
		},
	},
}
