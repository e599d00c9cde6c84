package constants

type contextKey string

const (
	TxKey       contextKey = "tx"
	PoolKey     contextKey = "pool"
	TenantIDKey contextKey = "tenantID"
	UserIDKey   contextKey = "userID"
	LoggerKey   contextKey = "logger"
	RequestID   contextKey = "requestID"
)
