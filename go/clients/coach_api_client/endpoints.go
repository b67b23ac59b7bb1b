package coach_api_client

const (
	// Base URL of a local backend
	DefaultBaseURL = "http://localhost:8000"

	// API Endpoints
	VerifyEmailEndpoint     = "/verify-email"
	ResendOTPEndpoint       = "/resend-otp"
	CompleteWorkoutEndpoint = "/workouts/%s/complete"

	// Completion defaults sent with every commit
	DefaultRPE   = 7
	DefaultNotes = "Logged via Ironclad Command"

	// Backend detail strings that distinguish failures sharing a status code
	detailCodeExpired = "Code expired"
)
