package hyperlane

func CloneBytes(src []byte) []byte {
	if src == nil {
		return nil
	}
	return append([]byte(nil), src...)
}

func CloneByteSlices(src [][]byte) [][]byte {
	if src == nil {
		return nil
	}
	out := make([][]byte, len(src))
	for i, b := range src {
		out[i] = CloneBytes(b)
	}
	return out
}
