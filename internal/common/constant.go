package common

// AuthorizationHeaderName carries the bearer access token on inbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerScheme is the only accepted authorization scheme.
const BearerScheme = "Bearer"

// TokenTypeBearer is reported to clients alongside issued access tokens.
const TokenTypeBearer = "bearer"
