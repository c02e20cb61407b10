package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingRecordValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"kind",
			"traveler_id",
			"course_id",
			"hold_id",
			"idempotency_key",
			"receipt_id",
			"amount",
			"currency",
			"created_at",
		},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":             bson.M{"bsonType": "string", "minLength": 1},
			"kind":            bson.M{"enum": []string{"booking", "cancellation"}},
			"traveler_id":     bson.M{"bsonType": "string", "minLength": 1, "maxLength": 64},
			"course_id":       bson.M{"bsonType": "string", "minLength": 1, "maxLength": 64},
			"hold_id":         bson.M{"bsonType": "string", "minLength": 1},
			"hold_sequence":   bson.M{"bsonType": []string{"int", "long"}, "minimum": 1},
			"idempotency_key": bson.M{"bsonType": "string", "minLength": 64, "maxLength": 64},
			"receipt_id":      bson.M{"bsonType": "string", "minLength": 1},
			"refund_id":       bson.M{"bsonType": "string"},
			"amount":          bson.M{"bsonType": []string{"int", "long"}, "minimum": 0},
			"currency":        bson.M{"bsonType": "string", "minLength": 3, "maxLength": 3},
			"cancels_booking_id": bson.M{
				"bsonType": "string",
			},
			"created_at": bson.M{"bsonType": "date"},
		},
	},
}

var HoldValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "traveler_id", "course_id", "sequence", "status", "expires_at", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":         bson.M{"bsonType": "string", "minLength": 1},
			"traveler_id": bson.M{"bsonType": "string", "minLength": 1},
			"course_id":   bson.M{"bsonType": "string", "minLength": 1},
			"sequence":    bson.M{"bsonType": []string{"int", "long"}, "minimum": 1},
			"status":      bson.M{"enum": []string{"active", "committed", "released", "expired"}},
			"expires_at":  bson.M{"bsonType": "date"},
			"created_at":  bson.M{"bsonType": "date"},
		},
	},
}

var PaymentIntentValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "amount", "currency", "status", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":              bson.M{"bsonType": "string", "minLength": 1},
			"amount":           bson.M{"bsonType": []string{"int", "long"}, "minimum": 0},
			"currency":         bson.M{"bsonType": "string", "minLength": 3, "maxLength": 3},
			"status":           bson.M{"enum": []string{"created", "charging", "charged", "failed", "refunded"}},
			"attempts":         bson.M{"bsonType": []string{"int", "long"}, "minimum": 0},
			"lease_owner":      bson.M{"bsonType": "string"},
			"lease_expires_at": bson.M{"bsonType": "date"},
		},
	},
}
