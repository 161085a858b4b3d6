package handlers

import (
	"bytes"
	"sync"
)

// Request and response bodies are pooled; both can carry whole documents.
var (
	requestBuffers = sync.Pool{
		New: func() any { return bytes.NewBuffer(make([]byte, 0, 4096)) },
	}
	responseBuffers = sync.Pool{
		New: func() any { return bytes.NewBuffer(make([]byte, 0, 8192)) },
	}
)

// maxPooledBuffer keeps oversized buffers from pinning memory in the pool.
const maxPooledBuffer = 1 << 20

func getBuffer() *bytes.Buffer {
	if buf, ok := requestBuffers.Get().(*bytes.Buffer); ok {
		return buf
	}
	return bytes.NewBuffer(make([]byte, 0, 4096))
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	requestBuffers.Put(buf)
}

func getResponseBuffer() *bytes.Buffer {
	if buf, ok := responseBuffers.Get().(*bytes.Buffer); ok {
		return buf
	}
	return bytes.NewBuffer(make([]byte, 0, 8192))
}

func putResponseBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	responseBuffers.Put(buf)
}
