package channel

import (
	"sync"

	"github.com/vchanagent/vchanagent/constant"
)

// readBufPool recycles the scratch buffers readExactly uses to pull
// chunks off the transport. This package rolls its own framing
// instead of wrapping bufio, so the pool holds raw byte slices rather
// than *bufio.Reader/*bufio.Writer.
var readBufPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, readBufCap)
	},
}

const readBufCap = constant.MaxReadBufferSize

func getReadBuf() []byte {
	buf := readBufPool.Get().([]byte)
	return buf[:readBufCap]
}

func putReadBuf(buf []byte) {
	readBufPool.Put(buf[:0:readBufCap])
}
