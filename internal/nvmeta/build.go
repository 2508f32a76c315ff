package nvmeta

// Available reports whether this build can read DeepStream batch metadata.
//
// Builds without the deepstream tag still assemble and run the pipeline, but
// every probe callback reports ErrUnsupported.
func Available() bool {
	return deepstreamBuild
}
