package wire

// Body builders for the request opcodes. The caller supplies documents
// already marshaled by the BSON codec; these functions only lay out the
// op-specific fields around them.

// QueryBody lays out an OP_QUERY body: flags, the full collection name,
// the number of documents to skip, the number to return, and the query
// document.
func QueryBody(flags int32, ns string, skip, nReturn int32, doc []byte) []byte {
	buf := make([]byte, 0, 4+len(ns)+1+8+len(doc))
	buf = AppendInt32(buf, flags)
	buf = AppendCString(buf, ns)
	buf = AppendInt32(buf, skip)
	buf = AppendInt32(buf, nReturn)
	return append(buf, doc...)
}

// GetMoreBody lays out an OP_GET_MORE body for continuing a cursor.
func GetMoreBody(ns string, nReturn int32, cursorID int64) []byte {
	buf := make([]byte, 0, 4+len(ns)+1+12)
	buf = AppendInt32(buf, 0)
	buf = AppendCString(buf, ns)
	buf = AppendInt32(buf, nReturn)
	return AppendInt64(buf, cursorID)
}

// InsertBody lays out an OP_INSERT body carrying one or more documents.
func InsertBody(ns string, docs ...[]byte) []byte {
	size := 4 + len(ns) + 1
	for _, d := range docs {
		size += len(d)
	}
	buf := make([]byte, 0, size)
	buf = AppendInt32(buf, 0)
	buf = AppendCString(buf, ns)
	for _, d := range docs {
		buf = append(buf, d...)
	}
	return buf
}

// Update flag bits.
const (
	UpdateUpsert = int32(1 << 0)
	UpdateMulti  = int32(1 << 1)
)

// UpdateBody lays out an OP_UPDATE body: selector then modifier.
func UpdateBody(ns string, flags int32, selector, update []byte) []byte {
	buf := make([]byte, 0, 8+len(ns)+1+len(selector)+len(update))
	buf = AppendInt32(buf, 0)
	buf = AppendCString(buf, ns)
	buf = AppendInt32(buf, flags)
	buf = append(buf, selector...)
	return append(buf, update...)
}

// DeleteBody lays out an OP_DELETE body.
func DeleteBody(ns string, flags int32, selector []byte) []byte {
	buf := make([]byte, 0, 8+len(ns)+1+len(selector))
	buf = AppendInt32(buf, 0)
	buf = AppendCString(buf, ns)
	buf = AppendInt32(buf, flags)
	return append(buf, selector...)
}

// Query flag bits.
const (
	// QuerySlaveOK permits the query to run against a non-master node.
	QuerySlaveOK = int32(1 << 2)
)
