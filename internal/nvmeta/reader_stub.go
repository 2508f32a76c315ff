//go:build !deepstream

package nvmeta

import "unsafe"

const deepstreamBuild = false

// unavailableReader stands in for the DeepStream readers when the binary is
// built without the deepstream tag.
type unavailableReader struct{}

func (unavailableReader) Name() string { return "unavailable" }

func (unavailableReader) ReadBatch(unsafe.Pointer) (*BatchMeta, error) {
	return nil, ErrUnsupported
}

func platformReaders() []Reader {
	return []Reader{unavailableReader{}}
}
