//go:build !govips || !cgo

package enhance

func Startup() error {
	return nil
}

func Shutdown() {}

func newCodec() Codec {
	return stdlibCodec{}
}
