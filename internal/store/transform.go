// internal/store/transform.go
package store

// Increment adds step to every byte, mod 256.
func Increment(step byte) Transform {
	return func(b Block) Block {
		for i := range b {
			b[i] += step
		}
		return b
	}
}

// Fill sets every byte to v.
func Fill(v byte) Transform {
	return func(b Block) Block {
		for i := range b {
			b[i] = v
		}
		return b
	}
}

// Patch overwrites len(data) bytes starting at offset. A patch that does
// not fit inside the block yields nil, which Store rejects as a length
// mismatch.
func Patch(offset int, data []byte) Transform {
	return func(b Block) Block {
		if offset < 0 || len(data) == 0 || offset+len(data) > len(b) {
			return nil
		}
		copy(b[offset:], data)
		return b
	}
}
