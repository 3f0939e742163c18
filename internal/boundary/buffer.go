package boundary

// Buffer holds encoded bytes. The bytes may contain NUL; use Len rather
// than scanning for a terminator.
type Buffer struct {
	handle
	data []byte
}

func newBuffer(l *Ledger, data []byte) *Buffer {
	return &Buffer{handle: newHandle(KindBuffer, l), data: data}
}

// Bytes returns the encoded bytes. They stay readable until Free.
func (b *Buffer) Bytes() ([]byte, error) {
	if b == nil {
		return nil, nullHandle("buffer.bytes", KindBuffer)
	}
	if b.released.IsSet() {
		return nil, &Error{Kind: ErrKindReleased, Op: "buffer.bytes", Msg: "buffer handle already released"}
	}
	return b.data, nil
}

// Len returns the byte count, or 0 for a nil or released buffer.
func (b *Buffer) Len() int {
	if b == nil || b.released.IsSet() {
		return 0
	}
	return len(b.data)
}

func (b *Buffer) Free() error {
	if b == nil {
		return nullHandle("buffer.free", KindBuffer)
	}
	if err := b.release("buffer.free"); err != nil {
		return err
	}
	b.data = nil
	return nil
}

// BufferFree releases b.
func BufferFree(b *Buffer) error { return b.Free() }
