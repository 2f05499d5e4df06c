// Package bsonutil provides helpers for inspecting decoded BSON documents.
package bsonutil

import "gopkg.in/mgo.v2/bson"

// IsTruthy reports whether a decoded document value represents a true
// flag. Servers encode flags like ok and ismaster variously as booleans,
// integers, or doubles depending on version.
func IsTruthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v == 1
	case int32:
		return v == 1
	case int64:
		return v == 1
	case float64:
		return v == 1
	}
	return false
}

// ErrorMessage extracts the server-reported error text from a reply
// document, checking the err, errmsg, and $err fields in that order. Returns the
// empty string when the document carries no error.
func ErrorMessage(doc bson.M) string {
	if msg, ok := doc["err"].(string); ok && msg != "" {
		return msg
	}
	if msg, ok := doc["errmsg"].(string); ok && msg != "" {
		return msg
	}
	if msg, ok := doc["$err"].(string); ok && msg != "" {
		return msg
	}
	return ""
}

// ErrorCode extracts the numeric error code from a reply document, zero
// when absent.
func ErrorCode(doc bson.M) int {
	switch v := doc["code"].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
