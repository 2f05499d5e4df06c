package wire

// little-endian scalar helpers shared by the framer and the body builders

func getInt32(b []byte, pos int) int32 {
	return (int32(b[pos+0])) |
		(int32(b[pos+1]) << 8) |
		(int32(b[pos+2]) << 16) |
		(int32(b[pos+3]) << 24)
}

func setInt32(b []byte, pos int, i int32) {
	b[pos] = byte(i)
	b[pos+1] = byte(i >> 8)
	b[pos+2] = byte(i >> 16)
	b[pos+3] = byte(i >> 24)
}

func getInt64(b []byte, pos int) int64 {
	return (int64(b[pos+0])) |
		(int64(b[pos+1]) << 8) |
		(int64(b[pos+2]) << 16) |
		(int64(b[pos+3]) << 24) |
		(int64(b[pos+4]) << 32) |
		(int64(b[pos+5]) << 40) |
		(int64(b[pos+6]) << 48) |
		(int64(b[pos+7]) << 56)
}

// AppendInt32 appends i to buf in little-endian order.
func AppendInt32(buf []byte, i int32) []byte {
	return append(buf, byte(i), byte(i>>8), byte(i>>16), byte(i>>24))
}

// AppendInt64 appends i to buf in little-endian order.
func AppendInt64(buf []byte, i int64) []byte {
	buf = AppendInt32(buf, int32(i))
	return AppendInt32(buf, int32(i>>32))
}

// AppendCString appends s followed by a NUL terminator.
func AppendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}
