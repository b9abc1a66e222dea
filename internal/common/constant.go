package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the access
// token on outbound requests.
const AccessTokenHeaderName = "access_token"

// UnsignedPlaceholder is the literal signature value carried by artifacts
// that have not yet been signed by the owning device.
const UnsignedPlaceholder = "UNSIGNED"
