package conn

import (
	"fmt"

	"github.com/merizodb/merizo-driver/common/wire"
	"github.com/pkg/errors"
	"gopkg.in/mgo.v2/bson"
)

// getLastErrorBody frames the getLastError command for dbName as an
// OP_QUERY body, folding in the caller's safe-mode options. Only w,
// wtimeout, and fsync are recognized.
func getLastErrorBody(dbName string, safe bson.M) ([]byte, error) {
	cmd := bson.D{{Name: "getlasterror", Value: 1}}
	for key, value := range safe {
		switch key {
		case "w", "wtimeout", "fsync":
			cmd = append(cmd, bson.DocElem{Name: key, Value: value})
		default:
			return nil, &ArgumentError{
				Message: fmt.Sprintf("%v is not a valid safe mode option", key),
			}
		}
	}
	doc, err := bson.Marshal(cmd)
	if err != nil {
		return nil, errors.Wrap(err, "encoding getLastError")
	}
	return wire.QueryBody(0, dbName+".$cmd", 0, -1, doc), nil
}
