package config

const (
	EnvPrefix = "AUTOCARE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "AUTOCARE_APP_ENV"
	EnvPort     = "AUTOCARE_APP_PORT"
	EnvLogLevel = "AUTOCARE_LOG_LEVEL"

	EnvDBDSN    = "AUTOCARE_DB_DSN"
	EnvDBDriver = "AUTOCARE_DB_DRIVER"
	EnvDBHost   = "AUTOCARE_DB_HOST"
	EnvDBPort   = "AUTOCARE_DB_PORT"
	EnvDBUser   = "AUTOCARE_DB_USER"
	EnvDBName   = "AUTOCARE_DB_NAME"

	EnvRedisURL = "AUTOCARE_REDIS_URL"

	EnvJWTSecret              = "AUTOCARE_JWT_SECRET"
	EnvJWTIssuer              = "AUTOCARE_JWT_ISSUER"
	EnvJWTExpMins             = "AUTOCARE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "AUTOCARE_REFRESH_TOKEN_TTL_MINUTES"

	EnvMatchingPolicy          = "AUTOCARE_MATCHING_POLICY"
	EnvMatchingDistanceWeight  = "AUTOCARE_MATCHING_DISTANCE_WEIGHT"
	EnvMatchingRatingWeight    = "AUTOCARE_MATCHING_RATING_WEIGHT"
	EnvMatchingWorkloadWeight  = "AUTOCARE_MATCHING_WORKLOAD_WEIGHT"
	EnvMatchingNearestRadiusKm = "AUTOCARE_MATCHING_NEAREST_RADIUS_KM"
	EnvMatchingWeightedRadius  = "AUTOCARE_MATCHING_WEIGHTED_RADIUS_KM"
	EnvMatchingStaleAfter      = "AUTOCARE_MATCHING_LOCATION_STALE_AFTER"
	EnvMatchingMaxAttempts     = "AUTOCARE_MATCHING_MAX_MATCH_ATTEMPTS"

	EnvGCPProjectID = "AUTOCARE_GCP_PROJECT_ID"

	EnvPubSubAssignmentsTopic  = "AUTOCARE_PUBSUB_ASSIGNMENTS_TOPIC"
	EnvPubSubNotificationTopic = "AUTOCARE_PUBSUB_NOTIFICATION_TOPIC"
	EnvPubSubAssignmentsSub    = "AUTOCARE_PUBSUB_ASSIGNMENTS_SUBSCRIPTION"
	EnvPubSubNotificationSub   = "AUTOCARE_PUBSUB_NOTIFICATION_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
