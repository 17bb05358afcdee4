package bank

import "context"

// CipherVersion selects the vendor cipher revision used for login payloads.
const CipherVersion = "0.1"

// CipherGateway encrypts the login payload with the bank's vendor-supplied
// cipher. The cipher is consumed as an opaque artifact: raw payload plus key
// material in, ciphertext out. Its internals are not reimplemented here, and a
// compatible artifact must be present in the deployment environment.
type CipherGateway interface {
	Encrypt(ctx context.Context, payload []byte, keyMaterial []byte, version string) (string, error)
}

// CipherFunc adapts a plain function to the CipherGateway interface.
type CipherFunc func(ctx context.Context, payload []byte, keyMaterial []byte, version string) (string, error)

func (f CipherFunc) Encrypt(ctx context.Context, payload, keyMaterial []byte, version string) (string, error) {
	return f(ctx, payload, keyMaterial, version)
}
