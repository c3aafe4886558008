package store

// Keys of values persisted across restarts.
const (
	// KeyTokenExpireInfo holds the unix-millisecond time of the last token refresh.
	KeyTokenExpireInfo = "tokenExpireInfo"
	// KeyDeviceID holds the UUID sent as X-Client-Id.
	KeyDeviceID = "deviceId"
	// KeyAuthUserPrefix, followed by the provider name, holds the signed-in
	// identity and its refresh token as JSON.
	KeyAuthUserPrefix = "authUser:"
)
